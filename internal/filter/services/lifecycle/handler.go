package lifecycle

import (
	"github.com/haukened/rr-filter/internal/filter/domain"
	"github.com/haukened/rr-filter/internal/filter/gateways/transport"
)

// Interceptor decides whether a CONNECT target is decrypted.
type Interceptor interface {
	ShouldIntercept(host string) bool
}

// Decider filters one request.
type Decider interface {
	Decide(req domain.Request) domain.FilterDecision
}

type handler struct {
	interceptor Interceptor
	decider     Decider
}

// NewHandler joins a classifier and a request filter into the callbacks the
// transport invokes.
func NewHandler(i Interceptor, d Decider) transport.Handler {
	return &handler{interceptor: i, decider: d}
}

func (h *handler) OnNewConnection(host string) bool {
	return h.interceptor.ShouldIntercept(host)
}

func (h *handler) OnRequest(req domain.Request) domain.FilterDecision {
	return h.decider.Decide(req)
}
