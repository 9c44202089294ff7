package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Ravioli45/CNT3004-file-sharing/internal/logger"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/adapter"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/metrics"
	"github.com/hashicorp/go-multierror"
)

// DefaultShutdownTimeout bounds the Stop() calls issued during shutdown when
// New is given a non-positive timeout.
const DefaultShutdownTimeout = 30 * time.Second

// ErrAlreadyServing is returned by a second call to Serve.
var ErrAlreadyServing = errors.New("server: Serve already called")

// FileshareServer manages the lifecycle of the protocol adapters and the
// optional metrics HTTP server.
//
// Lifecycle:
//  1. Creation: New() with the shutdown timeout
//  2. Registration: AddAdapter() for each protocol, SetMetricsServer() if metrics are enabled
//  3. Startup: Serve() starts every component concurrently
//  4. Shutdown: context cancellation or the first component failure stops everything
//
// Example usage:
//
//	srv := server.New(cfg.Server.ShutdownTimeout)
//	for _, a := range adapters {
//	    if err := srv.AddAdapter(a); err != nil {
//	        return err
//	    }
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil {
//	    return err
//	}
type FileshareServer struct {
	adapters        []adapter.Adapter
	metricsServer   *metrics.Server
	shutdownTimeout time.Duration

	// mu protects adapters, metricsServer and served
	mu     sync.Mutex
	served bool
}

// New creates a FileshareServer. Call AddAdapter() to register protocols,
// then Serve() to start the server.
func New(shutdownTimeout time.Duration) *FileshareServer {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &FileshareServer{
		adapters:        make([]adapter.Adapter, 0, 2),
		shutdownTimeout: shutdownTimeout,
	}
}

// AddAdapter registers a protocol adapter. Duplicate protocols and port
// conflicts are rejected.
//
// Panics if a is nil. Returns an error once Serve() has been called.
func (s *FileshareServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return fmt.Errorf("cannot add %s adapter after Serve() has been called", a.Protocol())
	}

	for _, existing := range s.adapters {
		if existing.Protocol() == a.Protocol() {
			return fmt.Errorf("adapter for protocol %s already registered", a.Protocol())
		}
		if existing.Port() == a.Port() {
			return fmt.Errorf("port %d already in use by %s adapter", a.Port(), existing.Protocol())
		}
	}

	s.adapters = append(s.adapters, a)
	logger.Debug("Registered %s adapter on port %d", a.Protocol(), a.Port())
	return nil
}

// SetMetricsServer attaches the metrics HTTP server. It is started and stopped
// together with the adapters.
func (s *FileshareServer) SetMetricsServer(m *metrics.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metricsServer = m
}

// Adapters returns a copy of the registered adapters.
func (s *FileshareServer) Adapters() []adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]adapter.Adapter, len(s.adapters))
	copy(out, s.adapters)
	return out
}

// componentError pairs a component name with the error it returned.
type componentError struct {
	name string
	err  error
}

// Serve starts all registered adapters and the metrics server, then blocks
// until ctx is cancelled or one of them fails.
//
// On shutdown every adapter receives Stop() in reverse registration order,
// bounded by the shutdown timeout, and Serve waits for all of them to return.
//
// Returns:
//   - nil when shutdown was triggered by ctx
//   - the failing component's error, combined with any Stop() errors
func (s *FileshareServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServing
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	metricsServer := s.metricsServer
	s.mu.Unlock()

	logger.Info("Starting fileshare server with %d adapter(s)", len(adapters))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan componentError, len(adapters)+1)
	var wg sync.WaitGroup

	if metricsServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metricsServer.Start(runCtx); err != nil {
				errChan <- componentError{name: "metrics", err: err}
			}
		}()
	}

	for _, a := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			logger.Info("Starting %s adapter on port %d", a.Protocol(), a.Port())
			err := a.Serve(runCtx)
			switch {
			case runCtx.Err() != nil:
				logger.Debug("%s adapter stopped", a.Protocol())
			case err == nil:
				// Returning early without ctx cancellation is a failure.
				errChan <- componentError{name: a.Protocol(), err: errors.New("adapter stopped unexpectedly")}
			default:
				errChan <- componentError{name: a.Protocol(), err: err}
			}
		}(a)
	}

	var result *multierror.Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
	case failed := <-errChan:
		logger.Error("%s failed: %v - stopping all components", failed.name, failed.err)
		result = multierror.Append(result, fmt.Errorf("%s: %w", failed.name, failed.err))
	}

	cancel()
	if err := s.stopAll(adapters); err != nil {
		result = multierror.Append(result, err)
	}

	wg.Wait()
	logger.Info("Fileshare server stopped")

	return result.ErrorOrNil()
}

// stopAll stops adapters in reverse registration order and collects every
// Stop() error.
func (s *FileshareServer) stopAll(adapters []adapter.Adapter) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	logger.Info("Stopping %d adapter(s), timeout %v", len(adapters), s.shutdownTimeout)

	var result *multierror.Error
	for i := len(adapters) - 1; i >= 0; i-- {
		a := adapters[i]
		if err := a.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", a.Protocol(), err)
			result = multierror.Append(result, fmt.Errorf("stop %s: %w", a.Protocol(), err))
		}
	}
	return result.ErrorOrNil()
}
