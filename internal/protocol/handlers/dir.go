package handlers

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Ravioli45/CNT3004-file-sharing/internal/logger"
	"github.com/Ravioli45/CNT3004-file-sharing/internal/protocol/wire"
)

// Listing entry kinds.
const (
	EntryFile      = "file"
	EntryDirectory = "directory"
)

// DirRequest is a parsed "DIR [path]" frame.
type DirRequest struct {
	// Path is the directory to list, relative to the root. Empty means the root.
	Path string
}

// ParseDirRequest validates DIR arguments.
func ParseDirRequest(args []string) (*DirRequest, error) {
	switch len(args) {
	case 0:
		return &DirRequest{}, nil
	case 1:
		return &DirRequest{Path: args[0]}, nil
	default:
		return nil, newError(ErrInvalidArgument, ReasonInvalidArguments, "", nil)
	}
}

// Dir lists the immediate children of a directory.
//
// The payload is one quoted string of newline separated "<kind> <relPath>"
// entries, paths relative to the root, sorted by name:
//
//	OK "directory docs
//	file docs/a.txt"
//
// DIR takes no lock; a listing racing a write may or may not include it.
// In-progress uploads are never listed, and neither are entries whose path
// contains a quote or a line break: the listing format cannot carry them.
func (h *Handler) Dir(ctx *CommandContext, t Transport, req *DirRequest) (wire.Response, error) {
	if err := cancelled(ctx); err != nil {
		return wire.Response{}, err
	}

	logger.Debug("DIR: path=%q client=%s", req.Path, ctx.ClientAddr)

	p, err := h.resolve(ReasonDirectoryNotFound, req.Path)
	if err != nil {
		return wire.Response{}, err
	}

	info, err := os.Stat(p)
	if err != nil {
		if isNotExist(err) {
			return wire.Response{}, newError(ErrNotFound, ReasonDirectoryNotFound, p, err)
		}
		return wire.Response{}, newError(ErrIO, ReasonCantListDir, p, err)
	}
	if !info.IsDir() {
		return wire.Response{}, newError(ErrTypeMismatch, ReasonNotDirectory, p, nil)
	}

	entries, err := os.ReadDir(p)
	if err != nil {
		return wire.Response{}, newError(ErrIO, ReasonCantListDir, p, err)
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), TempFilePrefix) {
			continue
		}
		full := filepath.Join(p, e.Name())
		rel, err := h.Guard.Rel(full)
		if err != nil {
			continue
		}
		if !listable(rel) {
			logger.Debug("DIR: skipping unlistable entry %q client=%s", rel, ctx.ClientAddr)
			continue
		}
		lines = append(lines, entryKind(full, e)+" "+rel)
	}

	return wire.OK(`"` + strings.Join(lines, "\n") + `"`), nil
}

func listable(rel string) bool {
	return !strings.ContainsAny(rel, "\"\r\n")
}

// entryKind follows symlinks so a link to a directory lists as a directory.
func entryKind(full string, e os.DirEntry) string {
	if e.IsDir() {
		return EntryDirectory
	}
	if e.Type()&os.ModeSymlink != 0 {
		if info, err := os.Stat(full); err == nil && info.IsDir() {
			return EntryDirectory
		}
	}
	return EntryFile
}
