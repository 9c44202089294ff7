package metrics

import "time"

// Transfer directions.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// FileshareMetrics provides observability for the fileshare adapter.
//
// Implementations collect metrics about commands, payload transfers, lock
// contention and connection lifecycle. If no implementation is provided to
// the adapter, a no-op implementation is used.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewFileshareMetrics()
//	adapter := fileshare.New(config, guard, locks, m)
//
//	// Without metrics (no-op)
//	adapter := fileshare.New(config, guard, locks, nil)
type FileshareMetrics interface {
	// RecordCommand records a completed command.
	//
	// Parameters:
	//   - command: bounded command label (e.g., "UPLOAD", "SUBFOLDER_CREATE")
	//   - duration: time taken to process the command, including payload
	//   - errorCode: empty on success, otherwise the error code name
	RecordCommand(command string, duration time.Duration, errorCode string)

	// RecordCommandStart increments the in-flight command gauge.
	RecordCommandStart(command string)

	// RecordCommandEnd decrements the in-flight command gauge.
	RecordCommandEnd(command string)

	// RecordTransfer records a completed payload transfer.
	//
	// Parameters:
	//   - direction: DirectionUpload or DirectionDownload
	//   - bytes: payload bytes moved over the socket
	//   - duration: time spent moving them
	RecordTransfer(direction string, bytes int64, duration time.Duration)

	// RecordLockContention counts a command rejected because its path was locked.
	RecordLockContention(command string)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the total accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the total closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts connections closed because the
	// shutdown timeout expired.
	RecordConnectionForceClosed()

	// RecordHandshakeFailure counts sessions rejected at the handshake.
	RecordHandshakeFailure()
}

// NewNoopFileshareMetrics returns a FileshareMetrics that records nothing.
func NewNoopFileshareMetrics() FileshareMetrics {
	return noopFileshareMetrics{}
}

type noopFileshareMetrics struct{}

func (noopFileshareMetrics) RecordCommand(string, time.Duration, string) {}
func (noopFileshareMetrics) RecordCommandStart(string)                   {}
func (noopFileshareMetrics) RecordCommandEnd(string)                     {}
func (noopFileshareMetrics) RecordTransfer(string, int64, time.Duration) {}
func (noopFileshareMetrics) RecordLockContention(string)                 {}
func (noopFileshareMetrics) SetActiveConnections(int32)                  {}
func (noopFileshareMetrics) RecordConnectionAccepted()                   {}
func (noopFileshareMetrics) RecordConnectionClosed()                     {}
func (noopFileshareMetrics) RecordConnectionForceClosed()                {}
func (noopFileshareMetrics) RecordHandshakeFailure()                     {}
