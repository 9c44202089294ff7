package handlers

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/Ravioli45/CNT3004-file-sharing/internal/logger"
	"github.com/Ravioli45/CNT3004-file-sharing/internal/protocol/wire"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/metrics"
)

// DownloadRequest is a parsed "DOWNLOAD <path>" frame.
type DownloadRequest struct {
	Path string
}

// ParseDownloadRequest validates DOWNLOAD arguments.
func ParseDownloadRequest(args []string) (*DownloadRequest, error) {
	if len(args) != 1 {
		return nil, newError(ErrInvalidArgument, ReasonInvalidArguments, "", nil)
	}
	return &DownloadRequest{Path: args[0]}, nil
}

// Download streams a regular file to the client.
//
// Exchange:
//
//	C: DOWNLOAD <path>
//	S: OK <size> | ERR <reason>
//	C: OK                       (ready; anything else cancels)
//	S: <size raw bytes>
//	C: OK                       (received)
//	S: OK
//
// For an empty file the two client frames may arrive together as "OKOK".
//
// The lock is held from the size announcement until the final status, so the
// announced size cannot change under a concurrent upload.
func (h *Handler) Download(ctx *CommandContext, t Transport, req *DownloadRequest) (wire.Response, error) {
	if err := cancelled(ctx); err != nil {
		return wire.Response{}, err
	}

	logger.Info("DOWNLOAD: file=%s client=%s", req.Path, ctx.ClientAddr)

	p, err := h.resolve(ReasonFileNotFound, req.Path)
	if err != nil {
		return wire.Response{}, err
	}

	info, err := os.Stat(p)
	if err != nil {
		if isNotExist(err) {
			return wire.Response{}, newError(ErrNotFound, ReasonFileNotFound, p, err)
		}
		return wire.Response{}, newError(ErrIO, ReasonCantReadFile, p, err)
	}
	if !info.Mode().IsRegular() {
		return wire.Response{}, newError(ErrTypeMismatch, ReasonNotRegularFile, p, nil)
	}

	if err := h.acquire(wire.VerbDownload, p); err != nil {
		return wire.Response{}, err
	}
	defer h.Locks.Release(p)

	f, err := os.Open(p)
	if err != nil {
		if isNotExist(err) {
			return wire.Response{}, newError(ErrNotFound, ReasonFileNotFound, p, err)
		}
		return wire.Response{}, newError(ErrIO, ReasonCantReadFile, p, err)
	}
	defer func() { _ = f.Close() }()

	// Size from the open handle: the file may have been replaced between the
	// first stat and taking the lock.
	info, err = f.Stat()
	if err != nil {
		return wire.Response{}, newError(ErrIO, ReasonCantReadFile, p, err)
	}
	if !info.Mode().IsRegular() {
		return wire.Response{}, newError(ErrTypeMismatch, ReasonNotRegularFile, p, nil)
	}
	size := info.Size()

	if err := t.WriteResponse(wire.OK(strconv.FormatInt(size, 10))); err != nil {
		return wire.Response{}, fmt.Errorf("write download size: %w", err)
	}

	ready, err := t.ReadFrame()
	if err != nil {
		return wire.Response{}, fmt.Errorf("read download acknowledgment: %w", err)
	}
	if !wire.IsAffirmative(ready) {
		logger.Debug("DOWNLOAD: cancelled by client: file=%s client=%s", p, ctx.ClientAddr)
		return wire.Response{}, newError(ErrDeclined, ReasonDownloadCancelled, p, nil)
	}

	rec := h.startTransfer(metrics.DirectionDownload)
	sent, err := io.CopyN(t, f, size)
	elapsed := rec.done(sent)
	if err != nil {
		return wire.Response{}, fmt.Errorf("%w: sent %d of %d bytes: %v", ErrTransferSize, sent, size, err)
	}

	// With nothing to receive, a client sends its completion ack right behind
	// the ready frame and both can arrive in a single read.
	if size > 0 || wire.LeadingAffirmatives(ready) < 2 {
		if _, err := t.ReadFrame(); err != nil {
			return wire.Response{}, fmt.Errorf("read download completion: %w", err)
		}
	}

	logger.Info("DOWNLOAD: sent %s (%d bytes in %v) client=%s", p, sent, elapsed, ctx.ClientAddr)
	return wire.OK(""), nil
}
