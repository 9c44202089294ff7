// Package wire defines the fileshare wire format.
//
// The protocol runs over a single persistent TCP connection per client and
// has no line or length framing for text messages: every Read on the socket
// is treated as one frame of at most MaxFrameSize bytes. Both peers run in
// lockstep (each request waits for its response), which keeps frames from
// coalescing in practice.
//
// Requests are space separated tokens with the verb first:
//
//	UPLOAD <byteCount> <fileName> [destDir]
//	DOWNLOAD <path>
//	DELETE <path>
//	DIR [path]
//	SUBFOLDER CREATE|DELETE <path>
//	LOGOFF
//
// Responses are "OK[ <payload>]", "ERR[ <reason>]" or "OVR". Upload and
// download payloads follow on the same connection as raw bytes, sized by the
// byte count exchanged beforehand.
package wire

import (
	"errors"
	"fmt"
	"strings"
)

// Handshake is the default token a client must send before any command.
const Handshake = "LOGON"

// MaxFrameSize is the largest text frame read in one go.
const MaxFrameSize = 1024

// Response status codes.
const (
	StatusOK        = "OK"
	StatusErr       = "ERR"
	StatusOverwrite = "OVR"
)

// Command verbs.
const (
	VerbUpload    = "UPLOAD"
	VerbDownload  = "DOWNLOAD"
	VerbDelete    = "DELETE"
	VerbDir       = "DIR"
	VerbSubfolder = "SUBFOLDER"
	VerbLogoff    = "LOGOFF"

	// VerbLogout is accepted as an alias of LOGOFF for older clients.
	VerbLogout = "LOGOUT"
)

// SUBFOLDER actions.
const (
	SubfolderCreate = "CREATE"
	SubfolderDelete = "DELETE"
)

// ErrMalformedResponse is returned by ParseResponse for frames that do not
// start with a known status.
var ErrMalformedResponse = errors.New("malformed response")

// ============================================================================
// Responses
// ============================================================================

// Response is a single server to client status frame.
type Response struct {
	Status  string
	Payload string
}

// OK returns a success response carrying an optional payload.
func OK(payload string) Response {
	return Response{Status: StatusOK, Payload: payload}
}

// Err returns a failure response carrying a short reason.
func Err(reason string) Response {
	return Response{Status: StatusErr, Payload: reason}
}

// Overwrite returns the overwrite confirmation request.
func Overwrite() Response {
	return Response{Status: StatusOverwrite}
}

// IsOK reports whether the response is a success.
func (r Response) IsOK() bool { return r.Status == StatusOK }

// Encode renders the response as it is sent on the wire.
func (r Response) Encode() []byte {
	if r.Payload == "" {
		return []byte(r.Status)
	}
	return []byte(r.Status + " " + r.Payload)
}

func (r Response) String() string {
	return string(r.Encode())
}

// ParseResponse decodes a status frame received from a server.
func ParseResponse(frame string) (Response, error) {
	status, payload, _ := strings.Cut(frame, " ")
	switch status {
	case StatusOK, StatusErr, StatusOverwrite:
		return Response{Status: status, Payload: payload}, nil
	default:
		return Response{}, fmt.Errorf("%w: %q", ErrMalformedResponse, truncate(frame, 64))
	}
}

// IsAffirmative reports whether a client confirmation frame means "proceed".
//
// Any frame starting with OK counts (clients commonly send "OK: overwrite
// file"); anything else is a refusal.
func IsAffirmative(frame string) bool {
	return strings.HasPrefix(strings.TrimSpace(frame), StatusOK)
}

// LeadingAffirmatives counts the OK statuses a frame opens with. Two client
// frames sent back to back can arrive in one read: "OKOK" is two answers.
func LeadingAffirmatives(frame string) int {
	n := 0
	rest := strings.TrimSpace(frame)
	for strings.HasPrefix(rest, StatusOK) {
		n++
		rest = strings.TrimSpace(rest[len(StatusOK):])
	}
	return n
}

// ============================================================================
// Commands
// ============================================================================

// Command is a parsed client request frame.
type Command struct {
	// Verb is the upper-cased first token.
	Verb string

	// Args are the remaining whitespace separated tokens.
	Args []string

	// Raw is the frame as received.
	Raw string
}

// ParseCommand splits a request frame into verb and arguments.
//
// The verb is matched case-insensitively; arguments keep their case. A frame
// with no tokens yields a Command with an empty Verb.
func ParseCommand(frame string) Command {
	fields := strings.Fields(frame)
	if len(fields) == 0 {
		return Command{Raw: frame}
	}
	return Command{
		Verb: strings.ToUpper(fields[0]),
		Args: fields[1:],
		Raw:  frame,
	}
}

// Encode renders the command as a request frame.
func (c Command) Encode() []byte {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Verb)
	parts = append(parts, c.Args...)
	return []byte(strings.Join(parts, " "))
}

// Name returns a bounded label for logs and metrics: the verb, qualified
// with the action for SUBFOLDER commands, or UNKNOWN.
func (c Command) Name() string {
	switch c.Verb {
	case VerbUpload, VerbDownload, VerbDelete, VerbDir, VerbLogoff, VerbLogout:
		return c.Verb
	case VerbSubfolder:
		if len(c.Args) > 0 {
			switch action := strings.ToUpper(c.Args[0]); action {
			case SubfolderCreate, SubfolderDelete:
				return c.Verb + "_" + action
			}
		}
		return c.Verb
	default:
		return "UNKNOWN"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
