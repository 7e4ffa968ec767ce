package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/elazarl/goproxy"

	"github.com/haukened/rr-filter/internal/filter/common/log"
	"github.com/haukened/rr-filter/internal/filter/domain"
)

const (
	defaultShutdownTimeout   = 5 * time.Second
	defaultReadHeaderTimeout = 10 * time.Second
)

// ProxyOptions configures a ProxyTransport.
type ProxyOptions struct {
	Addr string
	// CA signs leaf certificates for intercepted hosts. Without it every
	// CONNECT is tunnelled.
	CA              *CertManager
	ShutdownTimeout time.Duration
	// Upstream carries forwarded requests. The default never consults
	// proxy environment variables, so registering this proxy system-wide
	// cannot make it loop back to itself.
	Upstream *http.Transport
	Metrics  Metrics
	Logger   log.Logger
}

// ProxyTransport implements ServerTransport with goproxy on an http.Server.
type ProxyTransport struct {
	addr            string
	ca              *CertManager
	shutdownTimeout time.Duration
	upstream        *http.Transport
	metrics         Metrics
	logger          log.Logger

	mu        sync.Mutex
	running   bool
	server    *http.Server
	listener  *trackingListener
	serveDone chan struct{}
}

// NewProxyTransport creates a new proxy transport instance.
func NewProxyTransport(opts ProxyOptions) *ProxyTransport {
	t := &ProxyTransport{
		addr:            opts.Addr,
		ca:              opts.CA,
		shutdownTimeout: opts.ShutdownTimeout,
		upstream:        opts.Upstream,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
	}
	if t.shutdownTimeout <= 0 {
		t.shutdownTimeout = defaultShutdownTimeout
	}
	if t.upstream == nil {
		t.upstream = defaultUpstream()
	}
	if t.metrics == nil {
		t.metrics = nopMetrics{}
	}
	if t.logger == nil {
		t.logger = log.NewNoopLogger()
	}
	t.logger = log.Component(t.logger, "transport")
	return t
}

func defaultUpstream() *http.Transport {
	return &http.Transport{
		Proxy: nil,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Start binds the listener and serves in the background. ctx bounds the bind
// only; use Stop to shut down.
func (t *ProxyTransport) Start(ctx context.Context, handler Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return ErrAlreadyRunning
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to bind proxy listener on %s: %w", t.addr, err)
	}

	t.listener = newTrackingListener(ln, t.metrics)
	t.server = &http.Server{
		Handler:           t.newProxy(handler),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	t.serveDone = make(chan struct{})
	t.running = true

	go t.serve(t.server, t.listener, t.serveDone)

	t.logger.Info(map[string]any{
		"address":   ln.Addr().String(),
		"intercept": t.ca != nil,
	}, "Proxy transport started")
	return nil
}

func (t *ProxyTransport) serve(srv *http.Server, ln net.Listener, done chan struct{}) {
	defer close(done)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		t.logger.Error(map[string]any{"error": err}, "Proxy server exited")
	}
}

// newProxy wires the handler into goproxy. CONNECT targets are classified
// first; decrypted and plain requests are then filtered by URL.
func (t *ProxyTransport) newProxy(handler Handler) *goproxy.ProxyHttpServer {
	proxy := goproxy.NewProxyHttpServer()
	proxy.Verbose = false
	proxy.Logger = printfLogger{t.logger}
	proxy.Tr = t.upstream

	var tlsConfig func(host string, ctx *goproxy.ProxyCtx) (*tls.Config, error)
	if t.ca != nil {
		proxy.CertStore = t.ca
		tlsConfig = goproxy.TLSConfigFromCA(t.ca.TLSCertificate())
	}

	proxy.OnRequest().HandleConnectFunc(func(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
		if tlsConfig != nil && handler.OnNewConnection(host) {
			return &goproxy.ConnectAction{Action: goproxy.ConnectMitm, TLSConfig: tlsConfig}, host
		}
		return goproxy.OkConnect, host
	})

	proxy.OnRequest().DoFunc(func(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		d := handler.OnRequest(domain.RequestFromHTTP(r))
		if !d.IsBlocked() {
			return r, nil
		}
		return r, goproxy.NewResponse(r, goproxy.ContentTypeHtml, http.StatusOK, d.Body)
	})
	return proxy
}

// Stop closes the listener, gives in-flight requests up to the shutdown
// timeout to finish, then force-closes every remaining client connection,
// including hijacked tunnels.
func (t *ProxyTransport) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	srv, ln, done := t.server, t.listener, t.serveDone
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), t.shutdownTimeout)
	defer cancel()

	var stopErr error
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		stopErr = fmt.Errorf("proxy shutdown: %w", err)
	}
	if forced := ln.closeAll(); forced > 0 {
		t.logger.Warn(map[string]any{"connections": forced}, "Force closed remaining connections")
	}
	<-done

	t.logger.Info(map[string]any{"address": ln.Addr().String()}, "Proxy transport stopped")
	return stopErr
}

// Address returns the bound address while running and the configured
// address otherwise.
func (t *ProxyTransport) Address() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running && t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.addr
}

// ActiveConnections returns the number of open client connections.
func (t *ProxyTransport) ActiveConnections() int {
	t.mu.Lock()
	ln := t.listener
	t.mu.Unlock()
	if ln == nil {
		return 0
	}
	return ln.Active()
}

// printfLogger routes goproxy's internal messages to debug level.
type printfLogger struct {
	logger log.Logger
}

func (p printfLogger) Printf(format string, v ...any) {
	p.logger.Debug(nil, fmt.Sprintf(format, v...))
}

var _ ServerTransport = (*ProxyTransport)(nil)
