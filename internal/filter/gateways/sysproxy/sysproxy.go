// Package sysproxy registers the filter as the operating system's HTTP(S)
// proxy and removes the registration on shutdown.
package sysproxy

import (
	"fmt"

	"github.com/haukened/rr-filter/internal/filter/common/log"
)

// Operation names carried by ConfigError.
const (
	OpSet   = "set"
	OpReset = "reset"
	OpGet   = "get"
)

// Settings is the proxy configuration currently in effect for the user.
type Settings struct {
	Enabled  bool
	Server   string // host:port
	Override string // bypass list in the platform's own syntax
}

// Configurator reads and writes the per-user proxy settings.
type Configurator interface {
	// Set points HTTP and HTTPS traffic at addr.
	Set(addr string) error
	// Reset disables the proxy and clears the server and bypass values.
	Reset() error
	Get() (Settings, error)
}

// ConfigError reports a failure to read or change the OS proxy settings.
// Callers log it and carry on; it never stops the filter.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("system proxy %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Noop leaves the OS settings untouched.
type Noop struct{}

func (Noop) Set(string) error       { return nil }
func (Noop) Reset() error           { return nil }
func (Noop) Get() (Settings, error) { return Settings{}, nil }

// New returns the platform Configurator, or Noop when disabled or on a
// platform without support.
func New(enabled bool, logger log.Logger) Configurator {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	if !enabled {
		return Noop{}
	}
	return newPlatform(log.Component(logger, "sysproxy"))
}

var _ Configurator = Noop{}
