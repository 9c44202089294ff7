package handlers

import (
	"os"

	"github.com/Ravioli45/CNT3004-file-sharing/internal/logger"
	"github.com/Ravioli45/CNT3004-file-sharing/internal/protocol/wire"
)

// DeleteRequest is a parsed "DELETE <path>" frame.
type DeleteRequest struct {
	Path string
}

// ParseDeleteRequest validates DELETE arguments.
func ParseDeleteRequest(args []string) (*DeleteRequest, error) {
	if len(args) != 1 {
		return nil, newError(ErrInvalidArgument, ReasonInvalidArguments, "", nil)
	}
	return &DeleteRequest{Path: args[0]}, nil
}

// Delete removes a regular file. Directories are refused; SUBFOLDER DELETE
// handles those.
//
// On success the lock entry for the path is dropped, not just released.
func (h *Handler) Delete(ctx *CommandContext, t Transport, req *DeleteRequest) (wire.Response, error) {
	if err := cancelled(ctx); err != nil {
		return wire.Response{}, err
	}

	logger.Info("DELETE: file=%s client=%s", req.Path, ctx.ClientAddr)

	p, err := h.resolve(ReasonFileNotFound, req.Path)
	if err != nil {
		return wire.Response{}, err
	}

	info, err := os.Stat(p)
	if err != nil {
		if isNotExist(err) {
			return wire.Response{}, newError(ErrNotFound, ReasonFileNotFound, p, err)
		}
		return wire.Response{}, newError(ErrIO, ReasonCantDeleteFile, p, err)
	}
	if !info.Mode().IsRegular() {
		return wire.Response{}, newError(ErrTypeMismatch, ReasonNotRegularFile, p, nil)
	}

	if err := h.acquire(wire.VerbDelete, p); err != nil {
		return wire.Response{}, err
	}

	if err := os.Remove(p); err != nil {
		h.Locks.Release(p)
		if isNotExist(err) {
			return wire.Response{}, newError(ErrNotFound, ReasonFileNotFound, p, err)
		}
		return wire.Response{}, newError(ErrIO, ReasonCantDeleteFile, p, err)
	}
	h.Locks.Forget(p)

	logger.Info("DELETE: removed %s client=%s", p, ctx.ClientAddr)
	return wire.OK(""), nil
}
