package config

import (
	"strings"
	"time"

	"github.com/Ravioli45/CNT3004-file-sharing/pkg/adapter/fileshare"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/gc"
)

// DefaultStorageRoot is the shared tree used when none is configured.
const DefaultStorageRoot = "/tmp/fileshare"

// DefaultMetricsPort is the Prometheus endpoint port.
const DefaultMetricsPort = 9090

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "") are replaced with defaults
//   - Explicit values are preserved
//   - Adapter-specific defaults come from the adapter package
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyFileshareDefaults(&cfg.Adapters.Fileshare, cfg.Server.ShutdownTimeout)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = DefaultMetricsPort
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Root == "" {
		cfg.Root = DefaultStorageRoot
	}
	cfg.GC.ApplyDefaults()
}

// applyFileshareDefaults sets fileshare adapter defaults. The adapter
// inherits the server-wide shutdown timeout unless it sets its own.
func applyFileshareDefaults(cfg *fileshare.FileshareConfig, serverShutdown time.Duration) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = serverShutdown
	}
	cfg.ApplyDefaults()
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			GC: gc.Config{Enabled: true},
		},
		Adapters: AdaptersConfig{
			Fileshare: fileshare.FileshareConfig{
				Enabled: true,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
