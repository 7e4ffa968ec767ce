package admin

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/haukened/rr-filter/internal/filter/common/clock"
)

// ReadinessCheck returns nil when a component is ready, or an error
// describing why it is not.
type ReadinessCheck func() error

// HealthChecker backs the liveness and readiness probes.
type HealthChecker struct {
	alive atomic.Bool
	ready atomic.Bool

	clock     clock.Clock
	startTime time.Time
	checks    []ReadinessCheck
}

// HealthResponse is the JSON body returned by the probe endpoints.
type HealthResponse struct {
	Status  string   `json:"status"`
	Uptime  string   `json:"uptime,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	Details []string `json:"details,omitempty"`
}

// NewHealthChecker creates a HealthChecker. Readiness additionally requires
// every check to pass.
func NewHealthChecker(clk clock.Clock, checks ...ReadinessCheck) *HealthChecker {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &HealthChecker{clock: clk, startTime: clk.Now(), checks: checks}
}

func (h *HealthChecker) SetAlive(alive bool) { h.alive.Store(alive) }
func (h *HealthChecker) SetReady(ready bool) { h.ready.Store(ready) }
func (h *HealthChecker) IsAlive() bool       { return h.alive.Load() }

// IsReady reports the ready flag and runs every readiness check.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load() && len(h.failures()) == 0
}

func (h *HealthChecker) failures() []string {
	var out []string
	for _, check := range h.checks {
		if err := check(); err != nil {
			out = append(out, err.Error())
		}
	}
	return out
}

func (h *HealthChecker) uptime() string {
	return h.clock.Now().Sub(h.startTime).Truncate(time.Second).String()
}

func (h *HealthChecker) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok", Uptime: h.uptime()}
	code := http.StatusOK
	if !h.IsAlive() {
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (h *HealthChecker) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok", Uptime: h.uptime()}
	if !h.ready.Load() {
		resp.Status = "not ready"
		resp.Reason = "filter not yet running"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	if failures := h.failures(); len(failures) > 0 {
		resp.Status = "not ready"
		resp.Details = failures
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
