package handlers

import (
	"github.com/Ravioli45/CNT3004-file-sharing/internal/protocol/wire"
)

// CommandFunc decodes arguments and runs one command.
type CommandFunc func(h *Handler, ctx *CommandContext, t Transport, args []string) (wire.Response, error)

// CommandInfo describes a dispatchable verb.
type CommandInfo struct {
	// Name is the verb as it appears on the wire.
	Name string

	// Handler runs the command.
	Handler CommandFunc
}

// DispatchTable maps verbs to their handlers. LOGOFF is not listed: ending the
// session is the session's own business.
var DispatchTable = map[string]*CommandInfo{
	wire.VerbUpload: {
		Name:    wire.VerbUpload,
		Handler: handleUpload,
	},
	wire.VerbDownload: {
		Name:    wire.VerbDownload,
		Handler: handleDownload,
	},
	wire.VerbDelete: {
		Name:    wire.VerbDelete,
		Handler: handleDelete,
	},
	wire.VerbDir: {
		Name:    wire.VerbDir,
		Handler: handleDir,
	},
	wire.VerbSubfolder: {
		Name:    wire.VerbSubfolder,
		Handler: handleSubfolder,
	},
}

// Dispatch runs cmd. Unknown verbs fail with ErrUnknownCommand.
func (h *Handler) Dispatch(ctx *CommandContext, t Transport, cmd wire.Command) (wire.Response, error) {
	info, ok := DispatchTable[cmd.Verb]
	if !ok {
		return wire.Response{}, newError(ErrUnknownCommand, ReasonUnknownCommand, "", nil)
	}
	return info.Handler(h, ctx, t, cmd.Args)
}

func handleUpload(h *Handler, ctx *CommandContext, t Transport, args []string) (wire.Response, error) {
	req, err := ParseUploadRequest(args)
	if err != nil {
		return wire.Response{}, err
	}
	return h.Upload(ctx, t, req)
}

func handleDownload(h *Handler, ctx *CommandContext, t Transport, args []string) (wire.Response, error) {
	req, err := ParseDownloadRequest(args)
	if err != nil {
		return wire.Response{}, err
	}
	return h.Download(ctx, t, req)
}

func handleDelete(h *Handler, ctx *CommandContext, t Transport, args []string) (wire.Response, error) {
	req, err := ParseDeleteRequest(args)
	if err != nil {
		return wire.Response{}, err
	}
	return h.Delete(ctx, t, req)
}

func handleDir(h *Handler, ctx *CommandContext, t Transport, args []string) (wire.Response, error) {
	req, err := ParseDirRequest(args)
	if err != nil {
		return wire.Response{}, err
	}
	return h.Dir(ctx, t, req)
}

func handleSubfolder(h *Handler, ctx *CommandContext, t Transport, args []string) (wire.Response, error) {
	req, err := ParseSubfolderRequest(args)
	if err != nil {
		return wire.Response{}, err
	}
	return h.Subfolder(ctx, t, req)
}
