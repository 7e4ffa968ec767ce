package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned by Start when the service is not Stopped.
	ErrInvalidState = errors.New("lifecycle: invalid state transition")
	// ErrAlreadyStopped is returned by Start once the service has been torn
	// down. A Service is single-use.
	ErrAlreadyStopped = errors.New("lifecycle: service already stopped")
)

// ListenerError reports a failure to bind or start the proxy or admin
// listener. Start also aborts on build and trust failures, which are wrapped
// plainly.
type ListenerError struct {
	Addr string
	Err  error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("listener %s: %v", e.Addr, e.Err)
}

func (e *ListenerError) Unwrap() error { return e.Err }
