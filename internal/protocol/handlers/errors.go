package handlers

import (
	"errors"
)

// ErrTransferSize is returned when a payload transfer moved fewer bytes than
// were declared. There is no delimiter to resynchronize on, so the session
// must be closed.
var ErrTransferSize = errors.New("transfer size mismatch")

// Client visible reasons. They are deliberately short and never include
// server-side paths.
const (
	ReasonFileNotFound      = "file not found"
	ReasonDirectoryNotFound = "directory not found"
	ReasonBusy              = "resource busy"
	ReasonNotRegularFile    = "not a regular file"
	ReasonNotDirectory      = "not a directory"
	ReasonTargetIsDirectory = "target is a directory"
	ReasonCantCreateDir     = "can't create directory"
	ReasonCantDeleteRoot    = "can't delete root folder"
	ReasonNotEmpty          = "can't delete non-empty folder"
	ReasonCantDeleteDir     = "can't delete directory"
	ReasonCantDeleteFile    = "can't delete file"
	ReasonCantReadFile      = "can't read file"
	ReasonCantWriteFile     = "can't write file"
	ReasonCantListDir       = "can't list directory"
	ReasonInvalidArguments  = "invalid arguments"
	ReasonUnknownCommand    = "unknown command"
	ReasonTooLarge          = "file too large"
	ReasonOverwriteDeclined = "overwrite declined"
	ReasonDownloadCancelled = "download cancelled"
	ReasonTransferFailed    = "transfer incomplete"
	ReasonShuttingDown      = "server shutting down"
)

// ErrorCode is the category of a command failure.
type ErrorCode int

const (
	// ErrNotFound: the resource does not exist, or resolves outside the root.
	ErrNotFound ErrorCode = iota

	// ErrBusy: another session holds the resource lock.
	ErrBusy

	// ErrTypeMismatch: expected a file and found a directory, or vice versa.
	ErrTypeMismatch

	// ErrAlreadyExists: the resource to create is already present.
	ErrAlreadyExists

	// ErrNotEmpty: a directory to remove still has entries.
	ErrNotEmpty

	// ErrInvalidArgument: malformed arguments or a forbidden target.
	ErrInvalidArgument

	// ErrTooLarge: the declared upload exceeds the configured maximum.
	ErrTooLarge

	// ErrIO: the filesystem operation failed.
	ErrIO

	// ErrDeclined: the client answered a confirmation with a refusal.
	ErrDeclined

	// ErrUnknownCommand: the verb is not part of the protocol.
	ErrUnknownCommand
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "NotFound"
	case ErrBusy:
		return "Busy"
	case ErrTypeMismatch:
		return "TypeMismatch"
	case ErrAlreadyExists:
		return "AlreadyExists"
	case ErrNotEmpty:
		return "NotEmpty"
	case ErrInvalidArgument:
		return "InvalidArgument"
	case ErrTooLarge:
		return "TooLarge"
	case ErrIO:
		return "IO"
	case ErrDeclined:
		return "Declined"
	case ErrUnknownCommand:
		return "UnknownCommand"
	default:
		return "Unknown"
	}
}

// CommandError is a command failure that is reported to the client as a
// single ERR frame. The session keeps running afterwards.
type CommandError struct {
	// Code is the error category
	Code ErrorCode

	// Message is the reason sent to the client
	Message string

	// Path is the server-side path involved, for logs only
	Path string

	// Err is the underlying cause, if any
	Err error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message, path string, cause error) *CommandError {
	return &CommandError{Code: code, Message: message, Path: path, Err: cause}
}

// AsCommandError extracts a *CommandError from err.
func AsCommandError(err error) (*CommandError, bool) {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr, true
	}
	return nil, false
}
