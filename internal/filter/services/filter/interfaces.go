package filter

import (
	"time"

	"github.com/haukened/rr-filter/internal/filter/domain"
)

// Index answers whether a subject contains a blocked token.
type Index interface {
	Match(subject string) (entry string, ok bool)
}

// HostIndex is Index for CONNECT hostnames.
type HostIndex interface {
	MatchHost(host string) (entry string, ok bool)
}

// Counter counts filtered requests.
type Counter interface {
	Increment() uint64
}

// BlockLog receives blocked URLs. Append must not block.
type BlockLog interface {
	Append(at time.Time, url string)
}

// Metrics receives classification and filtering outcomes.
type Metrics interface {
	ConnectionClassified(mode domain.InterceptMode)
	RequestFiltered(action domain.FilterAction)
}

type nopMetrics struct{}

func (nopMetrics) ConnectionClassified(domain.InterceptMode) {}
func (nopMetrics) RequestFiltered(domain.FilterAction)       {}

type nopBlockLog struct{}

func (nopBlockLog) Append(time.Time, string) {}
