package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Ravioli45/CNT3004-file-sharing/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes Prometheus metrics over HTTP.
//
// Endpoints:
//   - GET /metrics: Prometheus metrics in text format
//   - GET /: plain text pointer to /metrics
type Server struct {
	server       *http.Server
	config       ServerConfig
	listener     net.Listener
	listenerMu   sync.RWMutex
	ready        chan struct{}
	shutdownOnce sync.Once
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// BindAddress is the interface to listen on. Empty means all interfaces.
	BindAddress string

	// Port to listen on. Default: 9090. Use -1 for an ephemeral port (tests).
	Port int
}

func (c *ServerConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = 9090
	}
}

// NewServer creates a metrics HTTP server in a stopped state.
func NewServer(config ServerConfig) *Server {
	config.applyDefaults()

	mux := http.NewServeMux()

	if reg := GetRegistry(); reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
		logger.Debug("Metrics endpoint registered at /metrics")
	} else {
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "Metrics collection is disabled\n")
		})
		logger.Debug("Metrics collection disabled")
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprintf(w, "fileshare metrics server\n\nscrape /metrics\n")
	})

	return &Server{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		config: config,
		ready:  make(chan struct{}),
	}
}

// Start listens and serves until ctx is cancelled or the server fails.
//
// Returns nil on graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	port := s.config.Port
	if port < 0 {
		port = 0
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(s.config.BindAddress, fmt.Sprint(port)))
	if err != nil {
		return fmt.Errorf("metrics server listen: %w", err)
	}

	s.listenerMu.Lock()
	s.listener = ln
	s.listenerMu.Unlock()
	close(s.ready)

	logger.Info("Metrics server listening on %s", ln.Addr())

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Metrics server shutdown signal received")
		// The cancelled ctx would make Shutdown return immediately.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop gracefully shuts the server down. Safe to call multiple times.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("Metrics server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("metrics server shutdown: %w", err)
			logger.Error("Metrics server shutdown error: %v", err)
		} else {
			logger.Info("Metrics server stopped gracefully")
		}
	})
	return shutdownErr
}

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Port returns the port the server listens on, resolving ephemeral ports once started.
func (s *Server) Port() int {
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()

	if s.listener != nil {
		if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return s.config.Port
}
