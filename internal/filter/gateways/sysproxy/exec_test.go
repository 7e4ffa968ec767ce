//go:build !windows

package sysproxy

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-filter/internal/filter/common/log"
)

// fakeRunner records invocations and answers from a table keyed by the
// joined command line. failOn makes matching commands return an error.
type fakeRunner struct {
	calls   []string
	outputs map[string]string
	failOn  string
}

func (f *fakeRunner) run(name string, args ...string) (string, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, line)
	if f.failOn != "" && strings.Contains(line, f.failOn) {
		return "", errors.New(line + ": failed")
	}
	return f.outputs[line], nil
}

func TestExecRunner(t *testing.T) {
	out, err := execRunner("echo", "hello")
	if err != nil {
		t.Skip("echo not available")
	}
	assert.Equal(t, "hello", out)

	_, err = execRunner("definitely-not-a-real-binary-rr")
	assert.Error(t, err)
}

func TestGSettings_Set(t *testing.T) {
	f := &fakeRunner{}
	g := &GSettings{run: f.run, logger: log.NewNoopLogger()}

	require.NoError(t, g.Set("127.0.0.1:8888"))
	assert.Equal(t, []string{
		"gsettings set org.gnome.system.proxy.http host 127.0.0.1",
		"gsettings set org.gnome.system.proxy.http port 8888",
		"gsettings set org.gnome.system.proxy.https host 127.0.0.1",
		"gsettings set org.gnome.system.proxy.https port 8888",
		"gsettings set org.gnome.system.proxy ignore-hosts " + gnomeIgnoreHosts,
		"gsettings set org.gnome.system.proxy mode 'manual'",
	}, f.calls)
}

func TestGSettings_SetInvalidAddress(t *testing.T) {
	f := &fakeRunner{}
	g := &GSettings{run: f.run, logger: log.NewNoopLogger()}

	err := g.Set("no-port")
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, OpSet, ce.Op)
	assert.Empty(t, f.calls)
}

func TestGSettings_SetStopsOnFailure(t *testing.T) {
	f := &fakeRunner{failOn: "https host"}
	g := &GSettings{run: f.run, logger: log.NewNoopLogger()}

	err := g.Set("127.0.0.1:8888")
	require.Error(t, err)
	assert.Len(t, f.calls, 3)
	for _, c := range f.calls {
		assert.NotContains(t, c, "mode")
	}
}

func TestGSettings_ResetAttemptsEverything(t *testing.T) {
	f := &fakeRunner{failOn: "mode"}
	g := &GSettings{run: f.run, logger: log.NewNoopLogger()}

	err := g.Reset()
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, OpReset, ce.Op)
	assert.Len(t, f.calls, 6)
}

func TestGSettings_Get(t *testing.T) {
	f := &fakeRunner{outputs: map[string]string{
		"gsettings get org.gnome.system.proxy mode":         "'manual'",
		"gsettings get org.gnome.system.proxy.http host":    "'127.0.0.1'",
		"gsettings get org.gnome.system.proxy.http port":    "8888",
		"gsettings get org.gnome.system.proxy ignore-hosts": "['localhost']",
	}}
	g := &GSettings{run: f.run, logger: log.NewNoopLogger()}

	s, err := g.Get()
	require.NoError(t, err)
	assert.Equal(t, Settings{Enabled: true, Server: "127.0.0.1:8888", Override: "['localhost']"}, s)
}

func TestGSettings_GetDisabled(t *testing.T) {
	f := &fakeRunner{outputs: map[string]string{
		"gsettings get org.gnome.system.proxy mode":      "'none'",
		"gsettings get org.gnome.system.proxy.http host": "''",
		"gsettings get org.gnome.system.proxy.http port": "0",
	}}
	g := &GSettings{run: f.run, logger: log.NewNoopLogger()}

	s, err := g.Get()
	require.NoError(t, err)
	assert.False(t, s.Enabled)
	assert.Empty(t, s.Server)
}

const listServices = "An asterisk (*) denotes that a network service is disabled.\nWi-Fi\n*Bluetooth PAN\nThunderbolt Bridge\n"

func TestNetworkSetup_Set(t *testing.T) {
	f := &fakeRunner{outputs: map[string]string{
		"networksetup -listallnetworkservices": listServices,
	}}
	n := &NetworkSetup{run: f.run, logger: log.NewNoopLogger()}

	require.NoError(t, n.Set("127.0.0.1:8888"))
	assert.Contains(t, f.calls, "networksetup -setwebproxy Wi-Fi 127.0.0.1 8888")
	assert.Contains(t, f.calls, "networksetup -setsecurewebproxy Thunderbolt Bridge 127.0.0.1 8888")
	for _, c := range f.calls {
		assert.NotContains(t, c, "Bluetooth")
	}
}

func TestNetworkSetup_Reset(t *testing.T) {
	f := &fakeRunner{outputs: map[string]string{
		"networksetup -listallnetworkservices": listServices,
	}}
	n := &NetworkSetup{run: f.run, logger: log.NewNoopLogger()}

	require.NoError(t, n.Reset())
	assert.Contains(t, f.calls, "networksetup -setwebproxystate Wi-Fi off")
	assert.Contains(t, f.calls, "networksetup -setsecurewebproxystate Wi-Fi off")
	assert.Contains(t, f.calls, "networksetup -setproxybypassdomains Thunderbolt Bridge Empty")
}

func TestNetworkSetup_NoServices(t *testing.T) {
	f := &fakeRunner{outputs: map[string]string{
		"networksetup -listallnetworkservices": "An asterisk (*) denotes that a network service is disabled.\n*Wi-Fi\n",
	}}
	n := &NetworkSetup{run: f.run, logger: log.NewNoopLogger()}

	err := n.Set("127.0.0.1:8888")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no enabled network services")
}

func TestNetworkSetup_Get(t *testing.T) {
	f := &fakeRunner{outputs: map[string]string{
		"networksetup -listallnetworkservices":      listServices,
		"networksetup -getwebproxy Wi-Fi":           "Enabled: Yes\nServer: 127.0.0.1\nPort: 8888\nAuthenticated Proxy Enabled: 0",
		"networksetup -getproxybypassdomains Wi-Fi": "localhost\n*.local",
	}}
	n := &NetworkSetup{run: f.run, logger: log.NewNoopLogger()}

	s, err := n.Get()
	require.NoError(t, err)
	assert.Equal(t, Settings{Enabled: true, Server: "127.0.0.1:8888", Override: "localhost;*.local"}, s)
}
