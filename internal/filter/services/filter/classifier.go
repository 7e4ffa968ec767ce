package filter

import (
	"net"

	"github.com/haukened/rr-filter/internal/filter/common/log"
	"github.com/haukened/rr-filter/internal/filter/common/utils"
	"github.com/haukened/rr-filter/internal/filter/domain"
)

// Classifier decides per connection whether TLS should be intercepted.
// Only hosts that match the index are decrypted; everything else is
// tunnelled untouched. A host that only matches by path is therefore
// never inspected.
type Classifier struct {
	index   HostIndex
	metrics Metrics
	logger  log.Logger
}

type ClassifierOptions struct {
	Index   HostIndex
	Metrics Metrics
	Logger  log.Logger
}

func NewClassifier(opts ClassifierOptions) *Classifier {
	c := &Classifier{index: opts.Index, metrics: opts.Metrics, logger: opts.Logger}
	if c.metrics == nil {
		c.metrics = nopMetrics{}
	}
	if c.logger == nil {
		c.logger = log.NewNoopLogger()
	}
	return c
}

// ShouldIntercept strips any port from host and reports whether the
// remaining hostname matches the index.
func (c *Classifier) ShouldIntercept(host string) bool {
	return c.Classify(host).Mode == domain.ModeIntercept
}

// Classify builds the Connection record for a CONNECT target.
func (c *Classifier) Classify(hostport string) domain.Connection {
	conn := domain.Connection{Host: utils.CanonicalHost(hostport), TLS: true}
	if _, port, err := net.SplitHostPort(hostport); err == nil {
		conn.Port = port
	}

	intercept := false
	if c.index != nil && conn.Host != "" {
		_, intercept = c.index.MatchHost(conn.Host)
	}
	conn.Mode = domain.ModeFor(intercept)
	c.metrics.ConnectionClassified(conn.Mode)
	c.logger.Debug(map[string]any{"host": conn.Host, "mode": conn.Mode.String()}, "connection_classified")
	return conn
}
