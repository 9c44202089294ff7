package handlers

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Ravioli45/CNT3004-file-sharing/internal/logger"
	"github.com/Ravioli45/CNT3004-file-sharing/internal/protocol/wire"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/metrics"
)

// ============================================================================
// Request
// ============================================================================

// UploadRequest is a parsed "UPLOAD <byteCount> <fileName> [destDir]" frame.
type UploadRequest struct {
	// Size is the exact number of payload bytes that follow.
	Size int64

	// FileName is the base name the file is stored under. Clients usually
	// send their local source path; only its last element is kept.
	FileName string

	// DestDir is the destination directory relative to the root.
	// Empty means the root.
	DestDir string
}

// ParseUploadRequest validates UPLOAD arguments.
func ParseUploadRequest(args []string) (*UploadRequest, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, newError(ErrInvalidArgument, ReasonInvalidArguments, "", nil)
	}

	size, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || size < 0 {
		return nil, newError(ErrInvalidArgument, ReasonInvalidArguments, "", err)
	}

	name := path.Base(strings.ReplaceAll(args[1], `\`, "/"))
	if name == "." || name == ".." || name == "/" || strings.HasPrefix(name, TempFilePrefix) {
		return nil, newError(ErrInvalidArgument, ReasonInvalidArguments, "", nil)
	}

	req := &UploadRequest{Size: size, FileName: name}
	if len(args) == 3 {
		req.DestDir = args[2]
	}
	return req, nil
}

// ============================================================================
// Protocol Handler
// ============================================================================

// Upload stores a file sent by the client.
//
// Exchange:
//
//	C: UPLOAD <size> <name> [dir]
//	S: OVR                      (only if the file exists)
//	C: OK | <anything else>     (anything else: S: ERR overwrite declined)
//	S: OK
//	C: <size raw bytes>
//	S: OK | ERR <reason>
//
// The payload is written to a hidden temporary file next to the target and
// renamed over it once every byte has arrived, so a failed or declined upload
// leaves any previous version untouched. If the local write fails, the rest
// of the payload is still drained from the socket and the client gets ERR.
// A short payload returns ErrTransferSize.
func (h *Handler) Upload(ctx *CommandContext, t Transport, req *UploadRequest) (wire.Response, error) {
	if err := cancelled(ctx); err != nil {
		return wire.Response{}, err
	}

	logger.Info("UPLOAD: file=%s dir=%q size=%d client=%s", req.FileName, req.DestDir, req.Size, ctx.ClientAddr)

	if h.MaxUploadSize > 0 && req.Size > h.MaxUploadSize {
		return wire.Response{}, newError(ErrTooLarge, ReasonTooLarge, "", nil)
	}

	// ========================================================================
	// Step 1: Confine the target and check its parent
	// ========================================================================

	target, err := h.resolve(ReasonDirectoryNotFound, req.DestDir, req.FileName)
	if err != nil {
		return wire.Response{}, err
	}
	if h.Guard.IsRoot(target) {
		return wire.Response{}, newError(ErrTypeMismatch, ReasonTargetIsDirectory, target, nil)
	}

	parent := filepath.Dir(target)
	parentInfo, err := os.Stat(parent)
	if err != nil {
		if isNotExist(err) {
			return wire.Response{}, newError(ErrNotFound, ReasonDirectoryNotFound, parent, err)
		}
		return wire.Response{}, newError(ErrIO, ReasonCantWriteFile, parent, err)
	}
	if !parentInfo.IsDir() {
		return wire.Response{}, newError(ErrTypeMismatch, ReasonNotDirectory, parent, nil)
	}

	// ========================================================================
	// Step 2: Lock the target, then inspect it
	// ========================================================================

	if err := h.acquire(wire.VerbUpload, target); err != nil {
		return wire.Response{}, err
	}
	defer h.Locks.Release(target)

	overwrite := false
	switch info, err := os.Stat(target); {
	case err == nil && info.IsDir():
		return wire.Response{}, newError(ErrTypeMismatch, ReasonTargetIsDirectory, target, nil)
	case err == nil && !info.Mode().IsRegular():
		return wire.Response{}, newError(ErrTypeMismatch, ReasonNotRegularFile, target, nil)
	case err == nil:
		overwrite = true
	case !isNotExist(err):
		return wire.Response{}, newError(ErrIO, ReasonCantWriteFile, target, err)
	}

	// ========================================================================
	// Step 3: Overwrite confirmation
	// ========================================================================

	if overwrite {
		if err := t.WriteResponse(wire.Overwrite()); err != nil {
			return wire.Response{}, fmt.Errorf("write overwrite prompt: %w", err)
		}
		answer, err := t.ReadFrame()
		if err != nil {
			return wire.Response{}, fmt.Errorf("read overwrite confirmation: %w", err)
		}
		if !wire.IsAffirmative(answer) {
			logger.Debug("UPLOAD: overwrite declined: file=%s client=%s", target, ctx.ClientAddr)
			return wire.Response{}, newError(ErrDeclined, ReasonOverwriteDeclined, target, nil)
		}
	}

	if err := t.WriteResponse(wire.OK("")); err != nil {
		return wire.Response{}, fmt.Errorf("write upload go-ahead: %w", err)
	}

	// ========================================================================
	// Step 4: Receive the payload into a temporary file
	// ========================================================================

	tmp, createErr := os.CreateTemp(parent, TempFilePrefix+"*")
	var dst io.Writer = io.Discard
	if createErr == nil {
		dst = tmp
	}
	discard := func() {
		if tmp != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}

	rec := h.startTransfer(metrics.DirectionUpload)
	received, writeErr, readErr := wire.CopyExact(dst, t, req.Size)
	elapsed := rec.done(received)

	if readErr != nil {
		discard()
		return wire.Response{}, fmt.Errorf("%w: received %d of %d bytes: %v", ErrTransferSize, received, req.Size, readErr)
	}
	if createErr != nil {
		return wire.Response{}, newError(ErrIO, ReasonCantWriteFile, target, createErr)
	}
	if writeErr != nil {
		discard()
		return wire.Response{}, newError(ErrIO, ReasonCantWriteFile, target, writeErr)
	}

	// ========================================================================
	// Step 5: Publish
	// ========================================================================

	if err := tmp.Chmod(0o644); err != nil {
		logger.Debug("UPLOAD: chmod %s: %v", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return wire.Response{}, newError(ErrIO, ReasonCantWriteFile, target, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return wire.Response{}, newError(ErrIO, ReasonCantWriteFile, target, err)
	}

	logger.Info("UPLOAD: stored %s (%d bytes in %v) client=%s", target, received, elapsed, ctx.ClientAddr)
	return wire.OK(""), nil
}
