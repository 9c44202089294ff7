package prometheus

import (
	"time"

	"github.com/Ravioli45/CNT3004-file-sharing/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// fileshareMetrics is the Prometheus implementation of metrics.FileshareMetrics.
type fileshareMetrics struct {
	commandsTotal          *prometheus.CounterVec
	commandDuration        *prometheus.HistogramVec
	commandsInFlight       *prometheus.GaugeVec
	bytesTransferred       *prometheus.CounterVec
	transferSize           *prometheus.HistogramVec
	transferThroughput     *prometheus.HistogramVec
	lockContention         *prometheus.CounterVec
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
	handshakeFailures      prometheus.Counter
}

// NewFileshareMetrics creates a Prometheus-backed FileshareMetrics registered
// on the global registry.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewFileshareMetrics() metrics.FileshareMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopFileshareMetrics()
	}
	return NewFileshareMetricsWith(metrics.GetRegistry())
}

// NewFileshareMetricsWith registers the fileshare collectors on reg.
//
// Registering twice on the same registry panics, as with any promauto collector.
func NewFileshareMetricsWith(reg prometheus.Registerer) metrics.FileshareMetrics {
	f := promauto.With(reg)

	return &fileshareMetrics{
		commandsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileshare_commands_total",
				Help: "Total number of commands by name, status and error code",
			},
			[]string{"command", "status", "error_code"},
		),
		commandDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "fileshare_command_duration_milliseconds",
				Help: "Duration of commands in milliseconds, payload included",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
					60000, // 1m
				},
			},
			[]string{"command"},
		),
		commandsInFlight: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fileshare_commands_in_flight",
				Help: "Current number of commands being processed",
			},
			[]string{"command"},
		),
		bytesTransferred: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileshare_bytes_transferred_total",
				Help: "Total payload bytes transferred",
			},
			[]string{"direction"},
		),
		transferSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "fileshare_transfer_size_bytes",
				Help: "Distribution of upload and download sizes",
				Buckets: []float64{
					1024,      // 1KB
					65536,     // 64KB
					1048576,   // 1MB
					10485760,  // 10MB
					104857600, // 100MB
				},
			},
			[]string{"direction"},
		),
		transferThroughput: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "fileshare_transfer_throughput_bytes_per_second",
				Help: "Distribution of per-transfer throughput",
				Buckets: []float64{
					65536,      // 64KB/s
					1048576,    // 1MB/s
					10485760,   // 10MB/s
					104857600,  // 100MB/s
					1073741824, // 1GB/s
				},
			},
			[]string{"direction"},
		),
		lockContention: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileshare_lock_contention_total",
				Help: "Commands rejected because the target path was locked",
			},
			[]string{"command"},
		),
		activeConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "fileshare_active_connections",
				Help: "Current number of active connections",
			},
		),
		connectionsAccepted: f.NewCounter(
			prometheus.CounterOpts{
				Name: "fileshare_connections_accepted_total",
				Help: "Total number of connections accepted",
			},
		),
		connectionsClosed: f.NewCounter(
			prometheus.CounterOpts{
				Name: "fileshare_connections_closed_total",
				Help: "Total number of connections closed",
			},
		),
		connectionsForceClosed: f.NewCounter(
			prometheus.CounterOpts{
				Name: "fileshare_connections_force_closed_total",
				Help: "Total number of connections force-closed during shutdown timeout",
			},
		),
		handshakeFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "fileshare_handshake_failures_total",
				Help: "Total number of sessions rejected at the handshake",
			},
		),
	}
}

func (m *fileshareMetrics) RecordCommand(command string, duration time.Duration, errorCode string) {
	status := "success"
	if errorCode != "" {
		status = "error"
	}

	m.commandsTotal.WithLabelValues(command, status, errorCode).Inc()
	m.commandDuration.WithLabelValues(command).Observe(duration.Seconds() * 1000) // Convert to milliseconds
}

func (m *fileshareMetrics) RecordCommandStart(command string) {
	m.commandsInFlight.WithLabelValues(command).Inc()
}

func (m *fileshareMetrics) RecordCommandEnd(command string) {
	m.commandsInFlight.WithLabelValues(command).Dec()
}

func (m *fileshareMetrics) RecordTransfer(direction string, bytes int64, duration time.Duration) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
	m.transferSize.WithLabelValues(direction).Observe(float64(bytes))
	if secs := duration.Seconds(); secs > 0 {
		m.transferThroughput.WithLabelValues(direction).Observe(float64(bytes) / secs)
	}
}

func (m *fileshareMetrics) RecordLockContention(command string) {
	m.lockContention.WithLabelValues(command).Inc()
}

func (m *fileshareMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *fileshareMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *fileshareMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *fileshareMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}

func (m *fileshareMetrics) RecordHandshakeFailure() {
	m.handshakeFailures.Inc()
}
