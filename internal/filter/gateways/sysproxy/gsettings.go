//go:build !windows

package sysproxy

import (
	"errors"
	"net"
	"strings"

	"github.com/haukened/rr-filter/internal/filter/common/log"
)

const (
	gnomeProxySchema = "org.gnome.system.proxy"
	gnomeIgnoreHosts = "['localhost', '127.0.0.0/8', '::1']"
)

// GSettings configures the GNOME desktop proxy via the gsettings CLI.
type GSettings struct {
	run    runner
	logger log.Logger
}

// NewGSettings returns a Configurator backed by gsettings.
func NewGSettings(logger log.Logger) *GSettings {
	return &GSettings{run: execRunner, logger: logger}
}

func (g *GSettings) Set(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return &ConfigError{Op: OpSet, Err: err}
	}
	cmds := [][]string{
		{"set", gnomeProxySchema + ".http", "host", host},
		{"set", gnomeProxySchema + ".http", "port", port},
		{"set", gnomeProxySchema + ".https", "host", host},
		{"set", gnomeProxySchema + ".https", "port", port},
		{"set", gnomeProxySchema, "ignore-hosts", gnomeIgnoreHosts},
		{"set", gnomeProxySchema, "mode", "'manual'"},
	}
	for _, args := range cmds {
		if _, err := g.run("gsettings", args...); err != nil {
			return &ConfigError{Op: OpSet, Err: err}
		}
	}
	g.logger.Info(map[string]any{"address": addr}, "System proxy has been set")
	return nil
}

func (g *GSettings) Reset() error {
	var errs []error
	for _, args := range [][]string{
		{"set", gnomeProxySchema, "mode", "'none'"},
		{"reset", gnomeProxySchema + ".http", "host"},
		{"reset", gnomeProxySchema + ".http", "port"},
		{"reset", gnomeProxySchema + ".https", "host"},
		{"reset", gnomeProxySchema + ".https", "port"},
		{"reset", gnomeProxySchema, "ignore-hosts"},
	} {
		if _, err := g.run("gsettings", args...); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return &ConfigError{Op: OpReset, Err: err}
	}
	g.logger.Info(nil, "System proxy has been reset")
	return nil
}

func (g *GSettings) Get() (Settings, error) {
	mode, err := g.run("gsettings", "get", gnomeProxySchema, "mode")
	if err != nil {
		return Settings{}, &ConfigError{Op: OpGet, Err: err}
	}
	host, err := g.run("gsettings", "get", gnomeProxySchema+".http", "host")
	if err != nil {
		return Settings{}, &ConfigError{Op: OpGet, Err: err}
	}
	port, err := g.run("gsettings", "get", gnomeProxySchema+".http", "port")
	if err != nil {
		return Settings{}, &ConfigError{Op: OpGet, Err: err}
	}
	ignore, err := g.run("gsettings", "get", gnomeProxySchema, "ignore-hosts")
	if err != nil {
		return Settings{}, &ConfigError{Op: OpGet, Err: err}
	}

	s := Settings{
		Enabled:  unquote(mode) == "manual",
		Override: ignore,
	}
	if h := unquote(host); h != "" {
		s.Server = net.JoinHostPort(h, strings.TrimSpace(port))
	}
	return s, nil
}

// unquote strips the single quotes gsettings prints around strings.
func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), "'")
}

var _ Configurator = (*GSettings)(nil)
