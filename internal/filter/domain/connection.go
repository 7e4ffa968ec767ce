package domain

import "fmt"

// InterceptMode is how the transport handles a connection.
type InterceptMode uint8

const (
	// ModeTunnel forwards encrypted bytes without inspection.
	ModeTunnel InterceptMode = iota
	// ModeIntercept terminates TLS with a locally signed certificate so
	// requests can be filtered.
	ModeIntercept
)

// String returns a stable string representation of the mode.
func (m InterceptMode) String() string {
	switch m {
	case ModeTunnel:
		return "tunnel"
	case ModeIntercept:
		return "intercept"
	default:
		return fmt.Sprintf("InterceptMode(%d)", m)
	}
}

// Connection describes one accepted client connection. It lives from accept
// to close and is never shared across connections.
type Connection struct {
	Host string // destination host without port
	Port string // destination port, "" when unknown
	TLS  bool   // true for CONNECT tunnels
	Mode InterceptMode
}

// ModeFor maps a classifier verdict to an InterceptMode.
func ModeFor(intercept bool) InterceptMode {
	if intercept {
		return ModeIntercept
	}
	return ModeTunnel
}
