package fileshare

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Ravioli45/CNT3004-file-sharing/internal/lockmap"
	"github.com/Ravioli45/CNT3004-file-sharing/internal/logger"
	"github.com/Ravioli45/CNT3004-file-sharing/internal/pathguard"
	"github.com/Ravioli45/CNT3004-file-sharing/internal/protocol/handlers"
	"github.com/Ravioli45/CNT3004-file-sharing/internal/protocol/wire"
	"github.com/Ravioli45/CNT3004-file-sharing/internal/ratelimiter"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/metrics"
)

// FileshareAdapter implements the adapter.Adapter interface for the fileshare protocol.
//
// It owns the TCP listener and one session goroutine per accepted client.
// Sessions share nothing but the resource lock table and the path guard,
// both injected at construction.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. shutdown channel closed: idle sessions notice it at their next poll
//     tick and close; sessions in the middle of a command finish it first
//  4. Wait for active sessions to complete (up to ShutdownTimeout)
//  5. Force-close any remaining connections after timeout
//
// Thread safety:
// All methods are safe for concurrent use. The shutdown mechanism uses
// sync.Once so Stop() may be called any number of times.
type FileshareAdapter struct {
	// config holds the server configuration (ports, timeouts, limits)
	config FileshareConfig

	// handler runs the protocol commands
	handler *handlers.Handler

	// metrics provides optional Prometheus metrics collection
	metrics metrics.FileshareMetrics

	// acceptLimiter throttles accepts; nil when unlimited
	acceptLimiter *ratelimiter.RateLimiter

	// listener is the TCP listener, closed during shutdown
	listener   net.Listener
	listenerMu sync.RWMutex

	// listening is closed once the listener is bound
	listening chan struct{}

	// activeConns tracks running sessions for graceful shutdown
	activeConns sync.WaitGroup

	// shutdownOnce protects the shutdown channel close and listener cleanup
	shutdownOnce sync.Once

	// shutdown is the adapter-wide shutdown flag polled by idle sessions
	shutdown chan struct{}

	// connCount is the current number of sessions
	connCount atomic.Int32

	// connSemaphore limits concurrent sessions when MaxConnections > 0
	connSemaphore chan struct{}

	// shutdownCtx is cancelled during shutdown; handlers refuse new work once it is
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps session ID to net.Conn for forced closure
	activeConnections sync.Map
}

// FileshareConfig holds configuration parameters for the fileshare server.
//
// Default values (applied by New if zero):
//   - Port: 3300
//   - HandshakeToken: "LOGON"
//   - MaxConnections: 0 (unlimited)
//   - AcceptRate: 0 (unlimited)
//   - PollInterval: 1s
//   - IdleTimeout: 0 (idle sessions stay open)
//   - TransferTimeout: 30s
//   - ShutdownTimeout: 30s
//   - MaxUploadSize: 0 (unlimited)
//   - MetricsLogInterval: 5m
type FileshareConfig struct {
	// Enabled controls whether the fileshare adapter is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// BindAddress is the interface to listen on. Empty means all interfaces.
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address" validate:"omitempty,ip"`

	// Port is the TCP port to listen on. If 0, defaults to 3300.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// MaxConnections limits concurrent client sessions. When reached, the
	// accept loop waits until a session ends. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" validate:"min=0"`

	// AcceptRate is the sustained number of connections accepted per second.
	// 0 disables throttling.
	AcceptRate float64 `mapstructure:"accept_rate" yaml:"accept_rate" validate:"min=0"`

	// AcceptBurst is how many connections may be accepted back to back
	// before AcceptRate applies.
	AcceptBurst int `mapstructure:"accept_burst" yaml:"accept_burst" validate:"min=0"`

	// HandshakeToken is the literal a client must send first.
	HandshakeToken string `mapstructure:"handshake_token" yaml:"handshake_token" validate:"omitempty,max=1024"`

	// PollInterval bounds each wait for the next command. When it expires the
	// session checks for shutdown and waits again.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" validate:"min=0"`

	// IdleTimeout closes sessions that send no command for this long.
	// 0 (the default) keeps idle sessions open until logoff or shutdown.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"min=0"`

	// TransferTimeout bounds every single socket read or write inside a
	// command (confirmations, payload chunks). It also bounds the handshake.
	TransferTimeout time.Duration `mapstructure:"transfer_timeout" yaml:"transfer_timeout" validate:"min=0"`

	// ShutdownTimeout is the maximum time to wait for sessions during
	// graceful shutdown before force-closing them.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	// MaxUploadSize rejects larger uploads before any payload is read.
	// 0 means unlimited.
	MaxUploadSize int64 `mapstructure:"max_upload_size" yaml:"max_upload_size" validate:"min=0"`

	// MetricsLogInterval is the interval of the periodic active-sessions log
	// line. 0 uses the default, a negative value disables it.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *FileshareConfig) ApplyDefaults() {
	// Enabled is defaulted in pkg/config so an explicit false survives.
	if c.Port <= 0 {
		c.Port = 3300
	}
	if c.HandshakeToken == "" {
		c.HandshakeToken = wire.Handshake
	}
	if c.PollInterval == 0 {
		c.PollInterval = time.Second
	}
	if c.TransferTimeout == 0 {
		c.TransferTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MetricsLogInterval == 0 {
		c.MetricsLogInterval = 5 * time.Minute
	}
	if c.AcceptRate > 0 && c.AcceptBurst == 0 {
		c.AcceptBurst = int(c.AcceptRate) + 1
	}
}

// Validate checks the configuration after defaults have been applied.
func (c *FileshareConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid max_connections %d: must be >= 0", c.MaxConnections)
	}
	if c.AcceptRate < 0 {
		return fmt.Errorf("invalid accept_rate %v: must be >= 0", c.AcceptRate)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid poll_interval %v: must be > 0", c.PollInterval)
	}
	if c.IdleTimeout < 0 || c.TransferTimeout < 0 {
		return fmt.Errorf("invalid timeouts: idle=%v transfer=%v must be >= 0", c.IdleTimeout, c.TransferTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown_timeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.MaxUploadSize < 0 {
		return fmt.Errorf("invalid max_upload_size %d: must be >= 0", c.MaxUploadSize)
	}
	return nil
}

// New creates a FileshareAdapter.
//
// guard confines every client path; locks is the lock table shared by all
// sessions of this adapter. A nil m disables metrics.
//
// Returns an error if the configuration is invalid after defaults.
func New(config FileshareConfig, guard *pathguard.Guard, locks *lockmap.Table, m metrics.FileshareMetrics) (*FileshareAdapter, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fileshare config: %w", err)
	}
	if guard == nil {
		return nil, errors.New("fileshare adapter requires a path guard")
	}
	if locks == nil {
		locks = lockmap.New()
	}
	if m == nil {
		m = metrics.NewNoopFileshareMetrics()
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug("Fileshare connection limit: %d", config.MaxConnections)
	} else {
		logger.Debug("Fileshare connection limit: unlimited")
	}

	h := handlers.New(guard, locks, m)
	h.MaxUploadSize = config.MaxUploadSize

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &FileshareAdapter{
		config:         config,
		handler:        h,
		metrics:        m,
		acceptLimiter:  ratelimiter.New(config.AcceptRate, config.AcceptBurst),
		listening:      make(chan struct{}),
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}, nil
}

// Serve binds the configured address and serves until ctx is cancelled.
func (s *FileshareAdapter) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.BindAddress, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create fileshare listener on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener accepts sessions on an existing listener until ctx is
// cancelled or Stop() is called. The adapter takes ownership of listener.
//
// Returns nil on graceful shutdown, or an error if sessions had to be
// force-closed.
func (s *FileshareAdapter) ServeListener(ctx context.Context, listener net.Listener) error {
	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	close(s.listening)

	logger.Info("Fileshare server listening on %s", listener.Addr())
	logger.Debug("Fileshare config: max_connections=%d accept_rate=%v poll=%v idle=%v transfer=%v",
		s.config.MaxConnections, s.config.AcceptRate, s.config.PollInterval,
		s.config.IdleTimeout, s.config.TransferTimeout)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Fileshare shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics()
	}

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		if err := s.acceptLimiter.Wait(s.shutdownCtx); err != nil {
			s.releaseSlot()
			return s.gracefulShutdown()
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			s.releaseSlot()

			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting fileshare connection: %v", err)
				continue
			}
		}

		s.activeConns.Add(1)
		s.connCount.Add(1)

		sess := newSession(s, tcpConn)
		s.activeConnections.Store(sess.id, tcpConn)

		s.metrics.RecordConnectionAccepted()
		currentConns := s.connCount.Load()
		s.metrics.SetActiveConnections(currentConns)

		logger.Debug("Fileshare connection accepted from %s session=%s (active: %d)",
			tcpConn.RemoteAddr(), sess.id, currentConns)

		go func() {
			defer func() {
				s.activeConnections.Delete(sess.id)

				s.connCount.Add(-1)
				s.releaseSlot()

				s.metrics.RecordConnectionClosed()
				currentConns := s.connCount.Load()
				s.metrics.SetActiveConnections(currentConns)

				logger.Debug("Fileshare connection closed from %s session=%s (active: %d)",
					sess.clientAddr, sess.id, currentConns)

				s.activeConns.Done()
			}()

			sess.Serve(s.shutdownCtx)
		}()
	}
}

func (s *FileshareAdapter) releaseSlot() {
	if s.connSemaphore != nil {
		<-s.connSemaphore
	}
}

// initiateShutdown closes the listener and raises the shutdown flag.
// Safe to call multiple times.
func (s *FileshareAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Fileshare shutdown initiated")

		close(s.shutdown)

		s.listenerMu.RLock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing fileshare listener: %v", err)
			}
		}
		s.listenerMu.RUnlock()

		s.cancelRequests()
	})
}

// gracefulShutdown waits for sessions to end, force-closing them once
// ShutdownTimeout expires.
func (s *FileshareAdapter) gracefulShutdown() error {
	logger.Info("Fileshare graceful shutdown: waiting for %d active session(s) (timeout: %v)",
		s.connCount.Load(), s.config.ShutdownTimeout)

	select {
	case <-s.sessionsDone():
		logger.Info("Fileshare graceful shutdown complete: all sessions closed")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("Fileshare shutdown timeout exceeded: %d session(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)

		s.forceCloseConnections()
		return fmt.Errorf("fileshare shutdown timeout: %d sessions force-closed", remaining)
	}
}

func (s *FileshareAdapter) sessionsDone() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()
	return done
}

// forceCloseConnections closes every tracked socket. Blocked reads and writes
// fail immediately and the sessions unwind, releasing their locks.
func (s *FileshareAdapter) forceCloseConnections() {
	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		id := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing session %s: %v", id, err)
		} else {
			closedCount++
			s.metrics.RecordConnectionForceClosed()
			logger.Debug("Force-closed session %s", id)
		}
		return true
	})

	if closedCount > 0 {
		logger.Info("Force-closed %d session(s)", closedCount)
	}
}

// Stop initiates graceful shutdown and waits for sessions until ctx expires,
// then force-closes whatever is left.
//
// With a nil ctx the configured ShutdownTimeout applies.
func (s *FileshareAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	select {
	case <-s.sessionsDone():
		return nil
	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("Fileshare shutdown context expired: %d session(s) still active: %v",
			remaining, ctx.Err())
		s.forceCloseConnections()
		return ctx.Err()
	}
}

// logMetrics periodically logs the active session count until shutdown.
func (s *FileshareAdapter) logMetrics() {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			logger.Info("Fileshare metrics: active_sessions=%d", s.connCount.Load())
		}
	}
}

// GetActiveConnections returns the current number of sessions.
func (s *FileshareAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Listening is closed once the listener is bound.
func (s *FileshareAdapter) Listening() <-chan struct{} {
	return s.listening
}

// Addr returns the bound listener address, or nil before Serve.
func (s *FileshareAdapter) Addr() net.Addr {
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound TCP port, or the configured port before Serve.
func (s *FileshareAdapter) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.config.Port
}

// Protocol returns "FILESHARE".
func (s *FileshareAdapter) Protocol() string {
	return "FILESHARE"
}
