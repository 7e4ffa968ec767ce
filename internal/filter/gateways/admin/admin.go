// Package admin serves the operational HTTP API: health probes, Prometheus
// metrics and blocking statistics.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/haukened/rr-filter/internal/filter/common/log"
	"github.com/haukened/rr-filter/internal/filter/repos/blocklist"
	"github.com/haukened/rr-filter/internal/filter/repos/blockstats"
)

const (
	defaultTopN              = 10
	maxTopN                  = 1000
	defaultReadHeaderTimeout = 5 * time.Second
)

// ErrAlreadyRunning is returned by Start on a running server.
var ErrAlreadyRunning = errors.New("admin server already running")

// IndexStats reports blocklist index statistics.
type IndexStats interface {
	Stats() blocklist.IndexStats
}

// BlockStats reports persisted per-domain block counts.
type BlockStats interface {
	Top(n int) ([]blockstats.DomainStat, error)
	Total() uint64
}

// Options configures a Server. Nil Metrics, Index or Blocks disable the
// corresponding routes.
type Options struct {
	Addr    string
	Health  *HealthChecker
	Metrics http.Handler
	Index   IndexStats
	Blocks  BlockStats
	// Requests returns the number of requests filtered so far.
	Requests func() uint64
	Logger   log.Logger
}

// Server is the admin HTTP listener.
type Server struct {
	opts   Options
	router chi.Router
	logger log.Logger

	mu       sync.Mutex
	running  bool
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	Requests     uint64                  `json:"requests"`
	Blocklist    *blocklist.IndexStats   `json:"blocklist,omitempty"`
	BlockedTotal *uint64                 `json:"blocked_total,omitempty"`
	Top          []blockstats.DomainStat `json:"top,omitempty"`
}

// TopResponse is returned by GET /stats/top.
type TopResponse struct {
	Count   int                     `json:"count"`
	Domains []blockstats.DomainStat `json:"domains"`
}

// ErrorResponse is returned for error conditions.
type ErrorResponse struct {
	Error string `json:"error"`
}

// New builds the router. Call Start to listen.
func New(opts Options) *Server {
	if opts.Health == nil {
		opts.Health = NewHealthChecker(nil)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	s := &Server{
		opts:   opts,
		logger: log.Component(opts.Logger, "admin"),
	}
	s.buildRouter()
	return s
}

func (s *Server) buildRouter() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.opts.Health.handleHealthz)
	r.Get("/readyz", s.opts.Health.handleReadyz)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}
	r.Get("/stats", s.handleStats)
	if s.opts.Blocks != nil {
		r.Get("/stats/top", s.handleTop)
	}
	s.router = r
}

// Handler returns the admin router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	var resp StatsResponse
	if s.opts.Requests != nil {
		resp.Requests = s.opts.Requests()
	}
	if s.opts.Index != nil {
		st := s.opts.Index.Stats()
		resp.Blocklist = &st
	}
	if s.opts.Blocks != nil {
		total := s.opts.Blocks.Total()
		resp.BlockedTotal = &total
		top, err := s.opts.Blocks.Top(defaultTopN)
		if err != nil {
			s.logger.Warn(map[string]any{"error": err}, "Failed to read block statistics")
		}
		resp.Top = top
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	n := defaultTopN
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxTopN {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("n must be between 1 and %d", maxTopN)})
			return
		}
		n = v
	}
	top, err := s.opts.Blocks.Top(n)
	if err != nil {
		s.logger.Error(map[string]any{"error": err}, "Failed to read block statistics")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to read block statistics"})
		return
	}
	if top == nil {
		top = []blockstats.DomainStat{}
	}
	writeJSON(w, http.StatusOK, TopResponse{Count: len(top), Domains: top})
}

// Start binds Addr and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind admin listener on %s: %w", s.opts.Addr, err)
	}
	s.listener = ln
	s.srv = &http.Server{Handler: s.router, ReadHeaderTimeout: defaultReadHeaderTimeout}
	s.done = make(chan struct{})
	s.running = true

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(map[string]any{"error": err}, "Admin server exited")
		}
	}(s.srv, s.done)

	s.logger.Info(map[string]any{"address": ln.Addr().String()}, "Admin server started")
	return nil
}

// Stop shuts the server down within ctx. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv, done := s.srv, s.done
	s.mu.Unlock()

	err := srv.Shutdown(ctx)
	if err != nil {
		_ = srv.Close()
	}
	<-done
	s.logger.Info(nil, "Admin server stopped")
	return err
}

// Address returns the bound address while running and the configured one
// otherwise.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return s.listener.Addr().String()
	}
	return s.opts.Addr
}
