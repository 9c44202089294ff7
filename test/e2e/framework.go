// Package e2e runs the complete server stack (configuration, metrics,
// adapters, lifecycle) over real TCP and drives it with pkg/client.
package e2e

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Ravioli45/CNT3004-file-sharing/internal/logger"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/adapter/fileshare"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/client"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/config"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/gc"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/metrics"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/server"
)

// TestContext is a running server on free ports with its own storage root.
type TestContext struct {
	T       testing.TB
	Config  *config.Config
	Server  *server.FileshareServer
	Adapter *fileshare.FileshareAdapter
	Metrics *metrics.Server
	// Collector sweeps the root; its background worker is not started.
	Collector *gc.Collector
	Root      string
	Addr      string

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	serveMu sync.Mutex
	served  error
}

// Option adjusts the configuration before the server starts.
type Option func(*config.Config)

// WithMetrics enables the Prometheus endpoint. Collectors register in the
// process-wide registry, so only one TestContext per test binary may use it.
func WithMetrics() Option {
	return func(c *config.Config) {
		c.Server.Metrics.Enabled = true
		c.Server.Metrics.BindAddress = "127.0.0.1"
	}
}

// NewTestContext starts a server and registers its shutdown with t.Cleanup.
func NewTestContext(t testing.TB, opts ...Option) *TestContext {
	t.Helper()

	// Functional tests, not debugging sessions.
	logger.SetLevel("ERROR")

	cfg := config.GetDefaultConfig()
	cfg.Storage.Root = filepath.Join(t.TempDir(), "share")
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Server.Metrics.Port = findFreePort(t)

	fs := &cfg.Adapters.Fileshare
	fs.BindAddress = "127.0.0.1"
	fs.Port = findFreePort(t)
	fs.PollInterval = 50 * time.Millisecond
	fs.TransferTimeout = 5 * time.Second
	fs.ShutdownTimeout = 5 * time.Second
	fs.MetricsLogInterval = -1

	for _, opt := range opts {
		opt(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Invalid test configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	tc := &TestContext{
		T:      t,
		Config: cfg,
		Root:   cfg.Storage.Root,
		ctx:    ctx,
		cancel: cancel,
	}
	tc.startServer()
	t.Cleanup(tc.Cleanup)
	return tc
}

func (tc *TestContext) startServer() {
	tc.T.Helper()

	metricsResult := config.InitializeMetrics(tc.Config)

	adapters, err := config.CreateAdapters(tc.Config, metricsResult.FileshareMetrics)
	if err != nil {
		tc.T.Fatalf("Failed to create adapters: %v", err)
	}

	tc.Server = server.New(tc.Config.Server.ShutdownTimeout)
	if metricsResult.Server != nil {
		tc.Metrics = metricsResult.Server
		tc.Server.SetMetricsServer(metricsResult.Server)
	}
	for _, a := range adapters {
		if err := tc.Server.AddAdapter(a); err != nil {
			tc.T.Fatalf("Failed to add %s adapter: %v", a.Protocol(), err)
		}
		if fs, ok := a.(*fileshare.FileshareAdapter); ok {
			tc.Adapter = fs
		}
	}
	if tc.Adapter == nil {
		tc.T.Fatalf("No fileshare adapter created")
	}

	tc.Collector, err = config.CreateCollector(&tc.Config.Storage)
	if err != nil {
		tc.T.Fatalf("Failed to create collector: %v", err)
	}

	tc.wg.Add(1)
	go func() {
		defer tc.wg.Done()
		err := tc.Server.Serve(tc.ctx)
		tc.serveMu.Lock()
		tc.served = err
		tc.serveMu.Unlock()
	}()

	tc.waitForServer()
}

func (tc *TestContext) waitForServer() {
	tc.T.Helper()

	select {
	case <-tc.Adapter.Listening():
	case <-time.After(5 * time.Second):
		tc.T.Fatalf("Server did not start listening")
	}
	tc.Addr = tc.Adapter.Addr().String()

	if tc.Metrics != nil {
		select {
		case <-tc.Metrics.Ready():
		case <-time.After(5 * time.Second):
			tc.T.Fatalf("Metrics server did not start")
		}
	}
}

// Connect logs a new client on.
func (tc *TestContext) Connect() *client.Client {
	tc.T.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := client.Connect(ctx, tc.Addr, client.Options{Timeout: 5 * time.Second})
	if err != nil {
		tc.T.Fatalf("Failed to connect: %v", err)
	}
	return c
}

// MetricsURL is the scrape URL, or empty without WithMetrics.
func (tc *TestContext) MetricsURL() string {
	if tc.Metrics == nil {
		return ""
	}
	return fmt.Sprintf("http://127.0.0.1:%d/metrics", tc.Metrics.Port())
}

// Path returns the absolute path of a root-relative file.
func (tc *TestContext) Path(rel string) string {
	return filepath.Join(tc.Root, filepath.FromSlash(rel))
}

// Stop shuts the server down and returns what Serve returned.
func (tc *TestContext) Stop() error {
	tc.cancel()
	tc.wg.Wait()

	tc.serveMu.Lock()
	defer tc.serveMu.Unlock()
	return tc.served
}

// Cleanup stops the server. Safe to call after Stop.
func (tc *TestContext) Cleanup() {
	if err := tc.Stop(); err != nil {
		tc.T.Logf("Server error: %v", err)
	}
}

func findFreePort(t testing.TB) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}
	defer func() { _ = listener.Close() }()

	return listener.Addr().(*net.TCPAddr).Port
}
