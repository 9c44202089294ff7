package config

import (
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/metrics"
	promMetrics "github.com/Ravioli45/CNT3004-file-sharing/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// FileshareMetrics is the metrics collector for the fileshare adapter
	// (never nil, uses noop if disabled)
	FileshareMetrics metrics.FileshareMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			Server:           nil,
			FileshareMetrics: metrics.NewNoopFileshareMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		BindAddress: cfg.Server.Metrics.BindAddress,
		Port:        cfg.Server.Metrics.Port,
	})

	return &MetricsResult{
		Server:           server,
		FileshareMetrics: promMetrics.NewFileshareMetrics(),
	}
}
