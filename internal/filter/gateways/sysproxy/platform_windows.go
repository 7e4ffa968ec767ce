package sysproxy

import (
	"errors"

	"golang.org/x/sys/windows/registry"

	"github.com/haukened/rr-filter/internal/filter/common/log"
)

const (
	internetSettingsKey = `Software\Microsoft\Windows\CurrentVersion\Internet Settings`
	defaultOverride     = "<local>"
)

func newPlatform(logger log.Logger) Configurator { return NewRegistry(logger) }

// Registry configures the WinINet per-user proxy used by Edge and most
// desktop applications.
type Registry struct {
	logger log.Logger
}

// NewRegistry returns a Configurator writing HKCU Internet Settings.
func NewRegistry(logger log.Logger) *Registry {
	return &Registry{logger: logger}
}

func (r *Registry) open(access uint32) (registry.Key, error) {
	return registry.OpenKey(registry.CURRENT_USER, internetSettingsKey, access)
}

func (r *Registry) Set(addr string) error {
	k, err := r.open(registry.SET_VALUE)
	if err != nil {
		return &ConfigError{Op: OpSet, Err: err}
	}
	defer k.Close()

	if err := k.SetStringValue("ProxyServer", addr); err != nil {
		return &ConfigError{Op: OpSet, Err: err}
	}
	if err := k.SetStringValue("ProxyOverride", defaultOverride); err != nil {
		return &ConfigError{Op: OpSet, Err: err}
	}
	if err := k.SetDWordValue("ProxyEnable", 1); err != nil {
		return &ConfigError{Op: OpSet, Err: err}
	}
	r.logger.Info(map[string]any{"address": addr}, "System proxy has been set")
	return nil
}

func (r *Registry) Reset() error {
	k, err := r.open(registry.SET_VALUE)
	if err != nil {
		return &ConfigError{Op: OpReset, Err: err}
	}
	defer k.Close()

	var errs []error
	if err := k.SetDWordValue("ProxyEnable", 0); err != nil {
		errs = append(errs, err)
	}
	for _, name := range []string{"ProxyServer", "ProxyOverride"} {
		if err := k.DeleteValue(name); err != nil && !errors.Is(err, registry.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return &ConfigError{Op: OpReset, Err: err}
	}
	r.logger.Info(nil, "System proxy has been reset")
	return nil
}

func (r *Registry) Get() (Settings, error) {
	k, err := r.open(registry.QUERY_VALUE)
	if err != nil {
		return Settings{}, &ConfigError{Op: OpGet, Err: err}
	}
	defer k.Close()

	var s Settings
	if v, _, err := k.GetIntegerValue("ProxyEnable"); err == nil {
		s.Enabled = v == 1
	} else if !errors.Is(err, registry.ErrNotExist) {
		return Settings{}, &ConfigError{Op: OpGet, Err: err}
	}
	if v, _, err := k.GetStringValue("ProxyServer"); err == nil {
		s.Server = v
	}
	if v, _, err := k.GetStringValue("ProxyOverride"); err == nil {
		s.Override = v
	}
	return s, nil
}

var _ Configurator = (*Registry)(nil)
