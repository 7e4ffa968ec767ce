package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-filter/internal/filter/common/clock"
	"github.com/haukened/rr-filter/internal/filter/repos/blocklist"
	"github.com/haukened/rr-filter/internal/filter/repos/blockstats"
)

type MockBlockStats struct {
	mock.Mock
}

func (m *MockBlockStats) Top(n int) ([]blockstats.DomainStat, error) {
	args := m.Called(n)
	stats, _ := args.Get(0).([]blockstats.DomainStat)
	return stats, args.Error(1)
}

func (m *MockBlockStats) Total() uint64 {
	return m.Called().Get(0).(uint64)
}

type fixedIndex blocklist.IndexStats

func (f fixedIndex) Stats() blocklist.IndexStats { return blocklist.IndexStats(f) }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthz(t *testing.T) {
	clk := &clock.MockClock{CurrentTime: time.Unix(1000, 0)}
	health := NewHealthChecker(clk)
	s := New(Options{Health: health})

	rec := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", decode[HealthResponse](t, rec).Status)

	health.SetAlive(true)
	clk.Advance(90 * time.Second)
	rec = get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1m30s", resp.Uptime)
}

func TestReadyz(t *testing.T) {
	var failing error
	health := NewHealthChecker(nil, func() error { return failing })
	s := New(Options{Health: health})

	rec := get(t, s.Handler(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "filter not yet running", decode[HealthResponse](t, rec).Reason)

	health.SetReady(true)
	rec = get(t, s.Handler(), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, health.IsReady())

	failing = errors.New("blocklist empty")
	rec = get(t, s.Handler(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, []string{"blocklist empty"}, decode[HealthResponse](t, rec).Details)
	assert.False(t, health.IsReady())
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "rrfilter_requests_total 1")
	})

	rec := get(t, New(Options{Metrics: metrics}).Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rrfilter_requests_total 1", rec.Body.String())

	rec = get(t, New(Options{}).Handler(), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	blocks := new(MockBlockStats)
	blocks.On("Total").Return(uint64(12))
	blocks.On("Top", 10).Return([]blockstats.DomainStat{{Domain: "example.com", Count: 12}}, nil)

	s := New(Options{
		Index:    fixedIndex{Entries: 3, Sources: []blocklist.SourceStats{{Name: "nsfw.txt", Lines: 3, Added: 3}}},
		Blocks:   blocks,
		Requests: func() uint64 { return 99 },
	})

	rec := get(t, s.Handler(), "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[StatsResponse](t, rec)
	assert.Equal(t, uint64(99), resp.Requests)
	require.NotNil(t, resp.Blocklist)
	assert.Equal(t, 3, resp.Blocklist.Entries)
	assert.Equal(t, "nsfw.txt", resp.Blocklist.Sources[0].Name)
	require.NotNil(t, resp.BlockedTotal)
	assert.Equal(t, uint64(12), *resp.BlockedTotal)
	require.Len(t, resp.Top, 1)
	assert.Equal(t, "example.com", resp.Top[0].Domain)
	blocks.AssertExpectations(t)
}

func TestStats_Minimal(t *testing.T) {
	rec := get(t, New(Options{}).Handler(), "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"requests":0}`, rec.Body.String())

	rec = get(t, New(Options{}).Handler(), "/stats/top")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTop(t *testing.T) {
	seen := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	blocks := new(MockBlockStats)
	blocks.On("Top", 10).Return([]blockstats.DomainStat{{Domain: "example.com", Count: 4, LastSeen: seen}}, nil)
	blocks.On("Top", 2).Return(nil, nil)
	blocks.On("Top", 5).Return(nil, errors.New("disk on fire"))
	s := New(Options{Blocks: blocks})

	rec := get(t, s.Handler(), "/stats/top")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[TopResponse](t, rec)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "example.com", resp.Domains[0].Domain)
	assert.True(t, seen.Equal(resp.Domains[0].LastSeen))

	rec = get(t, s.Handler(), "/stats/top?n=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":0,"domains":[]}`, rec.Body.String())

	rec = get(t, s.Handler(), "/stats/top?n=5")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	for _, bad := range []string{"0", "-1", "abc", "1001"} {
		rec = get(t, s.Handler(), "/stats/top?n="+bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
	blocks.AssertExpectations(t)
}

func TestServer_Lifecycle(t *testing.T) {
	health := NewHealthChecker(nil)
	health.SetAlive(true)
	s := New(Options{Addr: "127.0.0.1:0", Health: health})

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)

	resp, err := http.Get("http://" + s.Address() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
	assert.Equal(t, "127.0.0.1:0", s.Address())
}

func TestServer_BindFailure(t *testing.T) {
	s := New(Options{Addr: "256.0.0.1:1"})
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bind admin listener")
}
