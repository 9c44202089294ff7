package handlers

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/Ravioli45/CNT3004-file-sharing/internal/logger"
	"github.com/Ravioli45/CNT3004-file-sharing/internal/protocol/wire"
)

// SubfolderRequest is a parsed "SUBFOLDER CREATE|DELETE <path>" frame.
type SubfolderRequest struct {
	// Action is wire.SubfolderCreate or wire.SubfolderDelete.
	Action string
	Path   string
}

// ParseSubfolderRequest validates SUBFOLDER arguments. The action is
// matched case-insensitively.
func ParseSubfolderRequest(args []string) (*SubfolderRequest, error) {
	if len(args) != 2 {
		return nil, newError(ErrInvalidArgument, ReasonInvalidArguments, "", nil)
	}
	action := strings.ToUpper(args[0])
	if action != wire.SubfolderCreate && action != wire.SubfolderDelete {
		return nil, newError(ErrInvalidArgument, ReasonInvalidArguments, "", nil)
	}
	return &SubfolderRequest{Action: action, Path: args[1]}, nil
}

// Subfolder routes to SubfolderCreate or SubfolderDelete.
func (h *Handler) Subfolder(ctx *CommandContext, t Transport, req *SubfolderRequest) (wire.Response, error) {
	if req.Action == wire.SubfolderCreate {
		return h.SubfolderCreate(ctx, req.Path)
	}
	return h.SubfolderDelete(ctx, req.Path)
}

// SubfolderCreate creates exactly one directory level. Missing parents are
// an error, never created implicitly.
func (h *Handler) SubfolderCreate(ctx *CommandContext, rel string) (wire.Response, error) {
	if err := cancelled(ctx); err != nil {
		return wire.Response{}, err
	}

	logger.Info("SUBFOLDER CREATE: path=%s client=%s", rel, ctx.ClientAddr)

	p, err := h.resolve(ReasonCantCreateDir, rel)
	if err != nil {
		return wire.Response{}, err
	}
	if h.Guard.IsRoot(p) {
		return wire.Response{}, newError(ErrAlreadyExists, ReasonCantCreateDir, p, nil)
	}

	if err := h.acquire("SUBFOLDER_CREATE", p); err != nil {
		return wire.Response{}, err
	}
	defer h.Locks.Release(p)

	if _, err := os.Stat(p); err == nil {
		return wire.Response{}, newError(ErrAlreadyExists, ReasonCantCreateDir, p, nil)
	}

	if err := os.Mkdir(p, 0o755); err != nil {
		switch {
		case isNotExist(err):
			return wire.Response{}, newError(ErrNotFound, ReasonCantCreateDir, p, err)
		case errors.Is(err, fs.ErrExist):
			return wire.Response{}, newError(ErrAlreadyExists, ReasonCantCreateDir, p, err)
		default:
			return wire.Response{}, newError(ErrIO, ReasonCantCreateDir, p, err)
		}
	}

	logger.Info("SUBFOLDER CREATE: created %s client=%s", p, ctx.ClientAddr)
	return wire.OK(""), nil
}

// SubfolderDelete removes an empty directory. The root itself and non-empty
// directories are refused; removal is never recursive.
func (h *Handler) SubfolderDelete(ctx *CommandContext, rel string) (wire.Response, error) {
	if err := cancelled(ctx); err != nil {
		return wire.Response{}, err
	}

	logger.Info("SUBFOLDER DELETE: path=%s client=%s", rel, ctx.ClientAddr)

	p, err := h.resolve(ReasonDirectoryNotFound, rel)
	if err != nil {
		return wire.Response{}, err
	}
	if h.Guard.IsRoot(p) {
		return wire.Response{}, newError(ErrInvalidArgument, ReasonCantDeleteRoot, p, nil)
	}

	info, err := os.Stat(p)
	if err != nil {
		if isNotExist(err) {
			return wire.Response{}, newError(ErrNotFound, ReasonDirectoryNotFound, p, err)
		}
		return wire.Response{}, newError(ErrIO, ReasonCantDeleteDir, p, err)
	}
	if !info.IsDir() {
		return wire.Response{}, newError(ErrTypeMismatch, ReasonNotDirectory, p, nil)
	}

	if err := h.acquire("SUBFOLDER_DELETE", p); err != nil {
		return wire.Response{}, err
	}

	empty, err := isEmptyDir(p)
	if err != nil {
		h.Locks.Release(p)
		return wire.Response{}, newError(ErrIO, ReasonCantDeleteDir, p, err)
	}
	if !empty {
		h.Locks.Release(p)
		return wire.Response{}, newError(ErrNotEmpty, ReasonNotEmpty, p, nil)
	}

	if err := os.Remove(p); err != nil {
		h.Locks.Release(p)
		// Something may have been created between the check and the remove.
		if empty, _ := isEmptyDir(p); !empty {
			return wire.Response{}, newError(ErrNotEmpty, ReasonNotEmpty, p, err)
		}
		return wire.Response{}, newError(ErrIO, ReasonCantDeleteDir, p, err)
	}
	h.Locks.Forget(p)

	logger.Info("SUBFOLDER DELETE: removed %s client=%s", p, ctx.ClientAddr)
	return wire.OK(""), nil
}

func isEmptyDir(p string) (bool, error) {
	f, err := os.Open(p)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}
