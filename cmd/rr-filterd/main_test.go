package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-filter/internal/filter/config"
	"github.com/haukened/rr-filter/internal/filter/domain"
	"github.com/haukened/rr-filter/internal/filter/repos/blockstats"
)

// setupEnv points every path at a temp dir, disables the system proxy and
// binds ephemeral ports.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	lists := filepath.Join(dir, "lists")
	require.NoError(t, os.MkdirAll(lists, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(lists, "gambling.txt"), []byte("gambling.com\n  \nnsfw.net\n"), 0o644))

	t.Setenv("FILTER_ENV", "dev")
	t.Setenv("FILTER_LOG_LEVEL", "error")
	t.Setenv("FILTER_PROXY_LISTEN", "127.0.0.1:0")
	t.Setenv("FILTER_PROXY_SHUTDOWN_TIMEOUT", "200ms")
	t.Setenv("FILTER_PROXY_CA_CERT", filepath.Join(dir, "ca.crt"))
	t.Setenv("FILTER_PROXY_CA_KEY", filepath.Join(dir, "ca.key"))
	t.Setenv("FILTER_BLOCKLIST_DIR", lists)
	t.Setenv("FILTER_BLOCKLIST_FILES", "gambling.txt missing.txt")
	t.Setenv("FILTER_BLOCKLOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("FILTER_STATS_DB", filepath.Join(dir, "stats.db"))
	t.Setenv("FILTER_SYSPROXY_ENABLED", "false")
	return dir
}

func waitRunning(t *testing.T, app *Application, appErr <-chan error) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for app.service.State() != domain.StateRunning {
		select {
		case err := <-appErr:
			t.Fatalf("application exited during start: %v", err)
		case <-deadline:
			t.Fatal("application failed to start within timeout")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// TestApplication_Integration runs the daemon against a local upstream and
// checks blocking, the block log and the stats store end to end.
func TestApplication_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	dir := setupEnv(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "upstream ok")
	}))
	defer upstream.Close()

	cfg, err := config.Load()
	require.NoError(t, err)
	app, err := buildApplication(cfg, time.Date(2025, 3, 4, 5, 6, 7, 0, time.Local))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	appErr := make(chan error, 1)
	go func() { appErr <- app.Run(ctx) }()
	waitRunning(t, app, appErr)

	assert.Equal(t, 2, app.index.Load().Len())
	_, err = os.Stat(filepath.Join(dir, "ca.crt"))
	require.NoError(t, err, "CA generated on first start")

	proxyURL, err := url.Parse("http://" + app.transport.Address())
	require.NoError(t, err)
	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		Timeout:   5 * time.Second,
	}

	blockedURL := upstream.URL + "/www.gambling.com/play"
	resp, err := client.Get(blockedURL)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Access to this website is blocked.")

	resp, err = client.Get(upstream.URL + "/example.org")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "upstream ok", string(body))
	assert.Equal(t, uint64(2), app.counter.Load())

	cancel()
	select {
	case err := <-appErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("application failed to shut down within timeout")
	}

	logData, err := os.ReadFile(app.blockLog.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(logData), "\n"), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], " - Blocked: "+blockedURL), lines[0])
	assert.Equal(t, "blocked_urls_20250304_050607.log", filepath.Base(app.blockLog.Path()))

	store, err := blockstats.Open(filepath.Join(dir, "stats.db"))
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, uint64(1), store.Total())
}

func TestBuildApplication_ConfigurationVariations(t *testing.T) {
	tests := []struct {
		name          string
		setupEnv      func(t *testing.T, dir string)
		wantErr       bool
		errorContains string
	}{
		{
			name:     "defaults with temp paths",
			setupEnv: func(*testing.T, string) {},
		},
		{
			name: "half present CA",
			setupEnv: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "ca.crt"), []byte("x"), 0o600))
			},
			wantErr:       true,
			errorContains: "failed to load CA",
		},
		{
			name: "missing block page template",
			setupEnv: func(t *testing.T, dir string) {
				t.Setenv("FILTER_BLOCKPAGE_TEMPLATE", filepath.Join(dir, "nope.html"))
			},
			wantErr:       true,
			errorContains: "failed to load block page",
		},
		{
			name: "unwritable block log dir",
			setupEnv: func(t *testing.T, dir string) {
				file := filepath.Join(dir, "file")
				require.NoError(t, os.WriteFile(file, nil, 0o600))
				t.Setenv("FILTER_BLOCKLOG_DIR", filepath.Join(file, "logs"))
			},
			wantErr:       true,
			errorContains: "failed to open block log",
		},
		{
			name: "admin enabled without stats",
			setupEnv: func(t *testing.T, _ string) {
				t.Setenv("FILTER_ADMIN_LISTEN", "127.0.0.1:0")
				t.Setenv("FILTER_STATS_DB", "")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupEnv(t)
			tt.setupEnv(t, dir)

			cfg, err := config.Load()
			require.NoError(t, err)

			app, err := buildApplication(cfg, time.Now())
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, app)
			require.NoError(t, app.service.Stop(context.Background()))
		})
	}
}

func TestApplication_StartFailure(t *testing.T) {
	setupEnv(t)

	busy := httptest.NewServer(http.NotFoundHandler())
	defer busy.Close()
	t.Setenv("FILTER_PROXY_LISTEN", strings.TrimPrefix(busy.URL, "http://"))

	cfg, err := config.Load()
	require.NoError(t, err)
	app, err := buildApplication(cfg, time.Now())
	require.NoError(t, err)

	err = app.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start filter")
	assert.Equal(t, domain.StateStopped, app.service.State())
}

func TestIndexRef_StatsBeforeBuild(t *testing.T) {
	var ref indexRef
	assert.Equal(t, 0, ref.Stats().Entries)
	assert.Nil(t, ref.Load())
}
