package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Ravioli45/CNT3004-file-sharing/internal/logger"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/config"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/server"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the fileshare server",
	Long: `Start the fileshare server in the foreground.

The server runs until SIGINT or SIGTERM. Idle sessions notice the shutdown
within one poll interval; commands in flight get the shutdown timeout to finish.

Examples:
  # Start with the default config file
  fileshare start

  # Start with custom config file
  fileshare start --config /etc/fileshare/config.yaml

  # Override values from the environment
  FILESHARE_ADAPTERS_FILESHARE_PORT=3301 fileshare start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("fileshare %s starting", Version)
	logger.Info("Configuration loaded from %s", getConfigSource(GetConfigFile()))
	logger.Info("Sharing %s", cfg.Storage.Root)

	metricsResult := config.InitializeMetrics(cfg)

	srv := server.New(cfg.Server.ShutdownTimeout)
	if metricsResult.Server != nil {
		logger.Info("Metrics enabled on port %d", cfg.Server.Metrics.Port)
		srv.SetMetricsServer(metricsResult.Server)
	} else {
		logger.Info("Metrics collection disabled")
	}

	adapters, err := config.CreateAdapters(cfg, metricsResult.FileshareMetrics)
	if err != nil {
		return fmt.Errorf("failed to create adapters: %w", err)
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return fmt.Errorf("failed to add %s adapter: %w", a.Protocol(), err)
		}
		logger.Info("Adapter enabled: %s on port %d", a.Protocol(), a.Port())
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	collector, err := config.CreateCollector(&cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create orphaned upload collector: %w", err)
	}
	if cfg.Storage.GC.Enabled {
		if stats, err := collector.RunNow(ctx); err != nil {
			logger.Warn("Startup sweep failed: %v", err)
		} else if stats.OrphanedCount > 0 {
			logger.Info("Startup sweep: %s", stats.Summary())
		}
	}
	collector.Start()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer stopCancel()
		_ = collector.Stop(stopCtx)
	}()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case sig := <-sigChan:
		logger.Info("Received %v, initiating graceful shutdown", sig)
		cancel()
		if err := <-serverDone; err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		logger.Info("Server stopped gracefully")
		return nil

	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("Server stopped")
		return nil
	}
}

// getConfigSource describes where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
