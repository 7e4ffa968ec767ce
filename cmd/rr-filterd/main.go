package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/haukened/rr-filter/internal/filter/common/clock"
	"github.com/haukened/rr-filter/internal/filter/common/log"
	"github.com/haukened/rr-filter/internal/filter/config"
	"github.com/haukened/rr-filter/internal/filter/gateways/admin"
	"github.com/haukened/rr-filter/internal/filter/gateways/metrics"
	"github.com/haukened/rr-filter/internal/filter/gateways/sysproxy"
	"github.com/haukened/rr-filter/internal/filter/gateways/transport"
	"github.com/haukened/rr-filter/internal/filter/infra/blocklog"
	"github.com/haukened/rr-filter/internal/filter/repos/blocklist"
	"github.com/haukened/rr-filter/internal/filter/repos/blocklist/bloom"
	"github.com/haukened/rr-filter/internal/filter/repos/blocklist/lru"
	"github.com/haukened/rr-filter/internal/filter/repos/blockstats"
	"github.com/haukened/rr-filter/internal/filter/services/filter"
	"github.com/haukened/rr-filter/internal/filter/services/lifecycle"
	"github.com/haukened/rr-filter/internal/filter/services/telemetry"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "rr-filterd"

	// Extra time Stop gets beyond the proxy drain timeout for the remaining
	// teardown steps.
	stopGrace = 5 * time.Second
)

// Application holds all the components of the filtering proxy
type Application struct {
	config    *config.AppConfig
	service   *lifecycle.Service
	transport *transport.ProxyTransport
	index     *indexRef
	counter   *telemetry.Counter
	blockLog  *blocklog.Writer
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":   version,
		"env":       cfg.Env,
		"log_level": cfg.Log.Level,
		"listen":    cfg.Proxy.Listen,
		"lists":     cfg.Blocklist.Files,
		"list_dir":  cfg.Blocklist.Directory,
	}, "Starting "+appName)

	app, err := buildApplication(cfg, time.Now())
	if err != nil {
		log.Error(map[string]any{"error": err}, "Failed to build application")
		_ = log.Sync()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Error(map[string]any{"error": err}, "Filter failed")
		_ = log.Sync()
		os.Exit(1)
	}

	log.Info(nil, "RR-Filter stopped gracefully")
	_ = log.Sync()
}

// indexRef publishes the index built during Start to components created
// before it, such as the admin API.
type indexRef struct {
	p atomic.Pointer[blocklist.Index]
}

func (r *indexRef) Load() *blocklist.Index { return r.p.Load() }

func (r *indexRef) Stats() blocklist.IndexStats { return r.p.Load().Stats() }

// buildApplication constructs all components and wires them together. Files
// are opened here; the blocklist is loaded by the lifecycle on Start.
func buildApplication(cfg *config.AppConfig, startedAt time.Time) (*Application, error) {
	clk := &clock.RealClock{}
	logger := log.GetLogger()

	profiler := telemetry.NewMemoryProfiler(logger)
	profiler.Snapshot("startup")

	m := metrics.New()

	ca, created, err := transport.LoadOrCreateCA(cfg.Proxy.CA.Cert, cfg.Proxy.CA.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA: %w", err)
	}
	log.Info(map[string]any{
		"cert":      cfg.Proxy.CA.Cert,
		"generated": created,
		"subject":   ca.Certificate().Subject.CommonName,
		"expires":   ca.Certificate().NotAfter,
	}, "Interception CA ready")

	var trust transport.TrustInstaller = transport.NoopTrust{}
	if cfg.Proxy.CA.Export != "" {
		trust = transport.FileTrust{Path: cfg.Proxy.CA.Export}
	}

	page := filter.NewBlockPage()
	if cfg.BlockPage.Template != "" {
		page, err = filter.NewBlockPageFromFile(cfg.BlockPage.Template)
		if err != nil {
			return nil, fmt.Errorf("failed to load block page: %w", err)
		}
	}

	var closers []io.Closer
	var recorders []blocklog.Recorder
	var stats *blockstats.Store
	if cfg.Stats.DB != "" {
		stats, err = blockstats.Open(cfg.Stats.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to open stats db: %w", err)
		}
		recorders = append(recorders, stats)
		log.Info(map[string]any{"path": cfg.Stats.DB, "blocked_total": stats.Total()}, "Block statistics enabled")
	}

	blockLog, err := blocklog.Open(cfg.BlockLog.Directory, startedAt, blocklog.Options{
		Buffer:    cfg.BlockLog.Buffer,
		Logger:    logger,
		Metrics:   m,
		Recorders: recorders,
	})
	if err != nil {
		if stats != nil {
			_ = stats.Close()
		}
		return nil, fmt.Errorf("failed to open block log: %w", err)
	}
	// The writer drains into the stats store, so it closes first.
	closers = append(closers, blockLog)
	if stats != nil {
		closers = append(closers, stats)
	}
	log.Info(map[string]any{"path": blockLog.Path()}, "Block log opened")

	counter := telemetry.NewCounter(cfg.Telemetry.Every, telemetry.Async(func(n uint64) {
		m.SetCertCacheSize(ca.CachedLeaves())
		profiler.Snapshot(fmt.Sprintf("after %d requests", n))
	}))

	proxyTransport := transport.NewProxyTransport(transport.ProxyOptions{
		Addr:            cfg.Proxy.Listen,
		CA:              ca,
		ShutdownTimeout: cfg.Proxy.ShutdownTimeout,
		Metrics:         m,
		Logger:          logger,
	})

	ref := &indexRef{}
	build := func(context.Context) (transport.Handler, error) {
		idx, err := buildIndex(cfg, logger)
		if err != nil {
			return nil, err
		}
		ref.p.Store(idx)
		m.SetBlocklistEntries(idx.Len())
		profiler.Snapshot("blocklist loaded")

		classifier := filter.NewClassifier(filter.ClassifierOptions{
			Index:   idx,
			Metrics: m,
			Logger:  logger,
		})
		requestFilter := filter.NewRequestFilter(filter.RequestFilterOptions{
			Index:    idx,
			Counter:  counter,
			BlockLog: blockLog,
			Page:     page,
			Clock:    clk,
			Metrics:  m,
			Logger:   logger,
		})
		return lifecycle.NewHandler(classifier, requestFilter), nil
	}

	health := admin.NewHealthChecker(clk)
	opts := lifecycle.Options{
		Build:        build,
		Transport:    proxyTransport,
		Trust:        trust,
		CertPEM:      ca.CertPEM(),
		SysProxy:     sysproxy.New(cfg.SysProxy.Enabled, logger),
		ProxyAddress: cfg.SystemProxyAddress(),
		Health:       health,
		Closers:      closers,
		Metrics:      m,
		Logger:       logger,
	}
	if cfg.Admin.Listen != "" {
		adminOpts := admin.Options{
			Addr:     cfg.Admin.Listen,
			Health:   health,
			Metrics:  m.Handler(),
			Index:    ref,
			Requests: counter.Load,
			Logger:   logger,
		}
		if stats != nil {
			adminOpts.Blocks = stats
		}
		opts.Admin = admin.New(adminOpts)
	}

	return &Application{
		config:    cfg,
		service:   lifecycle.New(opts),
		transport: proxyTransport,
		index:     ref,
		counter:   counter,
		blockLog:  blockLog,
	}, nil
}

// buildIndex loads every configured category file and builds the index.
// Unreadable files are skipped with a warning.
func buildIndex(cfg *config.AppConfig, logger log.Logger) (*blocklist.Index, error) {
	cache, err := lru.New(cfg.Blocklist.Cache.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}
	sources := blocklist.LoadFiles(blocklist.Paths(cfg.Blocklist.Directory, cfg.Blocklist.Files), logger)
	idx, errs := blocklist.Build(sources,
		blocklist.WithGramFilter(bloom.NewFactory(), cfg.Blocklist.FPRate),
		blocklist.WithCache(cache),
		blocklist.WithLogger(logger),
	)
	if idx.Len() == 0 {
		logger.Warn(map[string]any{"failed_sources": len(errs)}, "Blocklist is empty, nothing will be blocked")
	}
	return idx, nil
}

// Run starts the filter and blocks until ctx is cancelled or the service
// stops on its own, then tears everything down.
func (app *Application) Run(ctx context.Context) error {
	if err := app.service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start filter: %w", err)
	}

	log.Info(map[string]any{
		"address": app.transport.Address(),
		"entries": app.index.Load().Len(),
	}, "RR-Filter started")

	select {
	case <-ctx.Done():
	case <-app.service.Done():
	}

	log.Info(nil, "Shutdown initiated")
	stopCtx, cancel := context.WithTimeout(context.Background(), app.config.Proxy.ShutdownTimeout+stopGrace)
	defer cancel()
	if err := app.service.Stop(stopCtx); err != nil {
		log.Warn(map[string]any{"error": err}, "Errors during shutdown")
	}
	log.Info(map[string]any{"requests": app.counter.Load()}, "Graceful shutdown completed")
	return nil
}
