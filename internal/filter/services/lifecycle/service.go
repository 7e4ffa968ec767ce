// Package lifecycle owns ordered startup and teardown of the filter: the
// proxy listener, CA trust, the admin API and the OS proxy registration.
package lifecycle

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/multierr"

	"github.com/haukened/rr-filter/internal/filter/common/log"
	"github.com/haukened/rr-filter/internal/filter/domain"
	"github.com/haukened/rr-filter/internal/filter/gateways/sysproxy"
	"github.com/haukened/rr-filter/internal/filter/gateways/transport"
)

// AdminServer is the optional operational HTTP listener.
type AdminServer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Address() string
}

// Health receives liveness and readiness changes.
type Health interface {
	SetAlive(bool)
	SetReady(bool)
}

// Metrics counts OS proxy configuration failures.
type Metrics interface {
	SysProxyError(op string)
}

// BuildFunc loads the blocklist and returns the callbacks the transport
// serves. It runs as the first step of Start.
type BuildFunc func(ctx context.Context) (transport.Handler, error)

// Options wires a Service. Build and Transport are required.
type Options struct {
	Build     BuildFunc
	Transport transport.ServerTransport
	// Trust receives CertPEM during Start. A failure is fatal.
	Trust   transport.TrustInstaller
	CertPEM []byte
	// SysProxy is pointed at ProxyAddress, or the transport's bound address
	// when empty. Its errors are logged and never fatal.
	SysProxy     sysproxy.Configurator
	ProxyAddress string
	Admin        AdminServer
	Health       Health
	// Closers are closed last on teardown, in order.
	Closers []io.Closer
	Metrics Metrics
	Logger  log.Logger
}

type undoStep struct {
	name string
	fn   func(ctx context.Context) error
}

// Service is the filter's state machine. It is single-use: once torn down it
// cannot be started again.
type Service struct {
	opts   Options
	logger log.Logger

	mu       sync.Mutex
	state    domain.ServiceState
	finished bool
	undo     []undoStep
	done     chan struct{}
}

// New returns a Stopped Service.
func New(opts Options) *Service {
	if opts.Trust == nil {
		opts.Trust = transport.NoopTrust{}
	}
	if opts.SysProxy == nil {
		opts.SysProxy = sysproxy.Noop{}
	}
	if opts.Health == nil {
		opts.Health = nopHealth{}
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Service{
		opts:   opts,
		logger: log.Component(opts.Logger, "lifecycle"),
		state:  domain.StateStopped,
		done:   make(chan struct{}),
	}
}

// State returns the current state.
func (s *Service) State() domain.ServiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the service has been torn down.
func (s *Service) Done() <-chan struct{} { return s.done }

func (s *Service) transition(next domain.ServiceState) {
	if !s.state.CanTransition(next) {
		panic(fmt.Sprintf("lifecycle: illegal transition %s -> %s", s.state, next))
	}
	s.logger.Debug(map[string]any{"from": s.state.String(), "to": next.String()}, "State transition")
	s.state = next
}

// Start brings the service up. On a fatal failure every completed step is
// undone in reverse order, the service ends Stopped and the error is
// returned.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return ErrAlreadyStopped
	}
	if s.state != domain.StateStopped {
		return ErrInvalidState
	}
	s.transition(domain.StateStarting)
	s.opts.Health.SetAlive(true)

	if err := s.start(ctx); err != nil {
		s.logger.Error(map[string]any{"error": err}, "Start failed, cleaning up")
		s.transition(domain.StateStopping)
		if terr := s.teardown(context.Background()); terr != nil {
			err = multierr.Append(err, terr)
		}
		return err
	}

	s.transition(domain.StateRunning)
	s.opts.Health.SetReady(true)
	s.logger.Info(map[string]any{"address": s.opts.Transport.Address()}, "Filter running")
	return nil
}

func (s *Service) start(ctx context.Context) error {
	h, err := s.opts.Build(ctx)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}

	// The chain must be trusted before the transport can honor a decrypt.
	if err := s.opts.Trust.Install(s.opts.CertPEM); err != nil {
		return fmt.Errorf("install CA trust: %w", err)
	}
	s.push("trust", func(context.Context) error { return s.opts.Trust.Uninstall() })

	if err := s.opts.Transport.Start(ctx, h); err != nil {
		return &ListenerError{Addr: s.opts.Transport.Address(), Err: err}
	}
	s.push("transport", func(context.Context) error { return s.opts.Transport.Stop() })

	if s.opts.Admin != nil {
		if err := s.opts.Admin.Start(ctx); err != nil {
			return &ListenerError{Addr: s.opts.Admin.Address(), Err: err}
		}
		s.push("admin", s.opts.Admin.Stop)
	}

	addr := s.opts.ProxyAddress
	if addr == "" {
		addr = s.opts.Transport.Address()
	}
	if err := s.opts.SysProxy.Set(addr); err != nil {
		s.opts.Metrics.SysProxyError(sysproxy.OpSet)
		s.logger.Warn(map[string]any{"error": err, "address": addr}, "Could not register system proxy, configure clients manually")
	}
	// Reset even after a failed Set; a partial Set may have changed settings.
	s.push("sysproxy", func(context.Context) error {
		if err := s.opts.SysProxy.Reset(); err != nil {
			s.opts.Metrics.SysProxyError(sysproxy.OpReset)
			s.logger.Warn(map[string]any{"error": err}, "Could not reset system proxy")
		}
		return nil
	})
	return nil
}

func (s *Service) push(name string, fn func(ctx context.Context) error) {
	s.undo = append(s.undo, undoStep{name: name, fn: fn})
}

// Stop tears the service down. It is safe to call repeatedly and from
// several goroutines; only the first call has any effect.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return nil
	}
	if s.state == domain.StateRunning {
		s.transition(domain.StateStopping)
	} else {
		// Never started: nothing to undo beyond the closers.
		s.state = domain.StateStopping
	}
	s.opts.Health.SetReady(false)
	s.logger.Info(nil, "Stopping filter")

	err := s.teardown(ctx)
	if err == nil {
		s.logger.Info(nil, "Filter stopped")
	}
	return err
}

// teardown runs undo steps in reverse, then the closers. Every step runs
// regardless of earlier failures. Callers hold mu and set Stopping.
func (s *Service) teardown(ctx context.Context) error {
	var errs error
	for i := len(s.undo) - 1; i >= 0; i-- {
		step := s.undo[i]
		if err := step.fn(ctx); err != nil {
			s.logger.Warn(map[string]any{"step": step.name, "error": err}, "Teardown step failed")
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}
	s.undo = nil

	for _, c := range s.opts.Closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	s.opts.Health.SetReady(false)
	s.opts.Health.SetAlive(false)
	s.transition(domain.StateStopped)
	s.finished = true
	close(s.done)
	return errs
}

type nopHealth struct{}

func (nopHealth) SetAlive(bool) {}
func (nopHealth) SetReady(bool) {}

type nopMetrics struct{}

func (nopMetrics) SysProxyError(string) {}
