//go:build !windows

package sysproxy

import (
	"errors"
	"net"
	"strings"

	"github.com/haukened/rr-filter/internal/filter/common/log"
)

var networksetupBypass = []string{"localhost", "127.0.0.1", "::1", "*.local"}

// NetworkSetup configures every macOS network service via networksetup.
type NetworkSetup struct {
	run    runner
	logger log.Logger
}

// NewNetworkSetup returns a Configurator backed by networksetup.
func NewNetworkSetup(logger log.Logger) *NetworkSetup {
	return &NetworkSetup{run: execRunner, logger: logger}
}

// services lists enabled network services. Disabled ones are prefixed
// with '*' and the first line is an informational header.
func (n *NetworkSetup) services() ([]string, error) {
	out, err := n.run("networksetup", "-listallnetworkservices")
	if err != nil {
		return nil, err
	}
	var svcs []string
	for i, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if i == 0 || line == "" || strings.HasPrefix(line, "*") {
			continue
		}
		svcs = append(svcs, line)
	}
	if len(svcs) == 0 {
		return nil, errors.New("no enabled network services")
	}
	return svcs, nil
}

func (n *NetworkSetup) Set(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return &ConfigError{Op: OpSet, Err: err}
	}
	svcs, err := n.services()
	if err != nil {
		return &ConfigError{Op: OpSet, Err: err}
	}
	for _, svc := range svcs {
		for _, args := range [][]string{
			{"-setwebproxy", svc, host, port},
			{"-setsecurewebproxy", svc, host, port},
			append([]string{"-setproxybypassdomains", svc}, networksetupBypass...),
		} {
			if _, err := n.run("networksetup", args...); err != nil {
				return &ConfigError{Op: OpSet, Err: err}
			}
		}
	}
	n.logger.Info(map[string]any{"address": addr, "services": svcs}, "System proxy has been set")
	return nil
}

func (n *NetworkSetup) Reset() error {
	svcs, err := n.services()
	if err != nil {
		return &ConfigError{Op: OpReset, Err: err}
	}
	var errs []error
	for _, svc := range svcs {
		for _, args := range [][]string{
			{"-setwebproxystate", svc, "off"},
			{"-setsecurewebproxystate", svc, "off"},
			{"-setproxybypassdomains", svc, "Empty"},
		} {
			if _, err := n.run("networksetup", args...); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return &ConfigError{Op: OpReset, Err: err}
	}
	n.logger.Info(nil, "System proxy has been reset")
	return nil
}

// Get reports the web proxy of the first enabled service.
func (n *NetworkSetup) Get() (Settings, error) {
	svcs, err := n.services()
	if err != nil {
		return Settings{}, &ConfigError{Op: OpGet, Err: err}
	}
	out, err := n.run("networksetup", "-getwebproxy", svcs[0])
	if err != nil {
		return Settings{}, &ConfigError{Op: OpGet, Err: err}
	}
	var s Settings
	var host, port string
	for _, line := range strings.Split(out, "\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		switch strings.TrimSpace(k) {
		case "Enabled":
			s.Enabled = v == "Yes"
		case "Server":
			host = v
		case "Port":
			port = v
		}
	}
	if host != "" {
		s.Server = net.JoinHostPort(host, port)
	}
	if bypass, err := n.run("networksetup", "-getproxybypassdomains", svcs[0]); err == nil {
		s.Override = strings.Join(strings.Fields(bypass), ";")
	}
	return s, nil
}

var _ Configurator = (*NetworkSetup)(nil)
