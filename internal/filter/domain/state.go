package domain

import "fmt"

// ServiceState is the lifecycle state of the filtering service.
//
//	Stopped -> Starting -> Running -> Stopping -> Stopped
//
// A failed start goes Starting -> Stopping -> Stopped.
type ServiceState uint8

const (
	StateStopped ServiceState = iota
	StateStarting
	StateRunning
	StateStopping
)

// String returns a stable string representation of the state.
func (s ServiceState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("ServiceState(%d)", s)
	}
}

// CanTransition reports whether moving from s to next is a legal edge.
func (s ServiceState) CanTransition(next ServiceState) bool {
	switch s {
	case StateStopped:
		return next == StateStarting
	case StateStarting:
		return next == StateRunning || next == StateStopping
	case StateRunning:
		return next == StateStopping
	case StateStopping:
		return next == StateStopped
	default:
		return false
	}
}
