// Package handlers implements the fileshare command handlers.
//
// Each handler runs one complete request/response transaction against the
// filesystem: validate arguments, confine the path to the root, take the
// resource lock where the command touches a specific path, perform the I/O,
// release the lock and produce the final status.
//
// Handlers return the final response to send, a *CommandError that the
// caller reports as a single ERR frame, or any other error, which means the
// connection can no longer be trusted and must be closed. Intermediate frames
// of multi-step exchanges (OVR prompts, download sizes) are written by the
// handlers themselves.
package handlers

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"time"

	"github.com/Ravioli45/CNT3004-file-sharing/internal/lockmap"
	"github.com/Ravioli45/CNT3004-file-sharing/internal/logger"
	"github.com/Ravioli45/CNT3004-file-sharing/internal/pathguard"
	"github.com/Ravioli45/CNT3004-file-sharing/internal/protocol/wire"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/metrics"
)

// TempFilePrefix marks in-progress uploads. DIR never lists such entries.
const TempFilePrefix = ".fileshare-upload-"

// Transport is the session side of a client connection.
//
// Read and Write move raw payload bytes; ReadFrame and WriteResponse move
// text frames. *wire.Conn implements it.
type Transport interface {
	io.Reader
	io.Writer
	ReadFrame() (string, error)
	WriteResponse(wire.Response) error
}

// CommandContext carries per-request information into handlers.
type CommandContext struct {
	// Context carries cancellation signals (server shutdown).
	Context context.Context

	// ClientAddr is the remote "IP:port", for logs.
	ClientAddr string

	// SessionID identifies the session in logs.
	SessionID string
}

// Handler holds the collaborators shared by all commands.
//
// The guard and lock table are owned by whoever builds the Handler; tests
// create independent instances per case.
type Handler struct {
	Guard   *pathguard.Guard
	Locks   *lockmap.Table
	Metrics metrics.FileshareMetrics

	// MaxUploadSize rejects larger uploads before any payload is read.
	// Zero means unlimited.
	MaxUploadSize int64
}

// New returns a Handler. A nil m disables metrics.
func New(guard *pathguard.Guard, locks *lockmap.Table, m metrics.FileshareMetrics) *Handler {
	if m == nil {
		m = metrics.NewNoopFileshareMetrics()
	}
	return &Handler{Guard: guard, Locks: locks, Metrics: m}
}

// resolve confines segments to the root. Any failure, including an escape
// attempt, is reported as notFound so clients learn nothing about paths outside the root.
func (h *Handler) resolve(notFound string, segments ...string) (string, error) {
	p, err := h.Guard.Resolve(segments...)
	if err != nil {
		if errors.Is(err, pathguard.ErrOutsideRoot) {
			logger.Debug("Path rejected: segments=%q error=%v", segments, err)
		}
		return "", newError(ErrNotFound, notFound, "", err)
	}
	return p, nil
}

// acquire takes the resource lock for p or fails with ErrBusy.
func (h *Handler) acquire(command, p string) error {
	if !h.Locks.TryAcquire(p) {
		h.Metrics.RecordLockContention(command)
		return newError(ErrBusy, ReasonBusy, p, nil)
	}
	return nil
}

// cancelled returns the context error, if any.
func cancelled(ctx *CommandContext) error {
	if ctx == nil || ctx.Context == nil {
		return nil
	}
	select {
	case <-ctx.Context.Done():
		return ctx.Context.Err()
	default:
		return nil
	}
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// transferRecorder times a payload transfer.
type transferRecorder struct {
	m         metrics.FileshareMetrics
	direction string
	start     time.Time
}

func (h *Handler) startTransfer(direction string) transferRecorder {
	return transferRecorder{m: h.Metrics, direction: direction, start: time.Now()}
}

func (r transferRecorder) done(bytes int64) time.Duration {
	elapsed := time.Since(r.start)
	r.m.RecordTransfer(r.direction, bytes, elapsed)
	return elapsed
}
