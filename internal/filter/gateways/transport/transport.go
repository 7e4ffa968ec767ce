// Package transport terminates client proxy connections. It hands each
// CONNECT target to a Handler for classification, decrypts the ones the
// handler asks for, and passes every visible HTTP request back to the handler
// for a verdict.
package transport

import (
	"context"
	"errors"

	"github.com/haukened/rr-filter/internal/filter/domain"
)

// ErrAlreadyRunning is returned by Start on a transport that is serving.
var ErrAlreadyRunning = errors.New("transport already running")

// Handler is the service-layer contract. Both methods are called
// synchronously on the connection's goroutine and must be safe for
// concurrent use.
type Handler interface {
	// OnNewConnection reports whether a CONNECT to host ("name:port")
	// should be intercepted instead of tunnelled.
	OnNewConnection(host string) bool

	// OnRequest filters one plain or decrypted HTTP request.
	OnRequest(req domain.Request) domain.FilterDecision
}

// ServerTransport defines the interface for proxy transport implementations.
type ServerTransport interface {
	// Start binds the listener and begins serving in the background.
	Start(ctx context.Context, handler Handler) error

	// Stop closes the listener, drains in-flight requests and force-closes
	// whatever remains. Calling Stop on a stopped transport is a no-op.
	Stop() error

	// Address returns the bound address once started.
	Address() string
}

// Metrics tracks open client connections.
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
}

type nopMetrics struct{}

func (nopMetrics) ConnectionOpened() {}
func (nopMetrics) ConnectionClosed() {}
