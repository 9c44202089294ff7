// Package client is a Go client for the fileshare protocol.
//
// A Client owns one TCP connection and runs commands strictly one at a time,
// mirroring the server's lockstep session. It is not safe for concurrent use.
//
// Typical use:
//
//	c, err := client.Connect(ctx, "localhost:3300", client.Options{})
//	if err != nil { ... }
//	defer c.Logoff()
//	err = c.Upload(f, size, "report.txt", "docs", client.OverwriteAlways)
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Ravioli45/CNT3004-file-sharing/internal/protocol/wire"
)

// DefaultTimeout bounds each socket read and write when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// ErrProtocol is returned when the server sends a frame that does not fit
// the exchange in progress. The connection is closed when it happens.
var ErrProtocol = errors.New("protocol violation")

// ErrClosed is returned by commands issued after the client was closed.
var ErrClosed = errors.New("client closed")

// ServerError is a command rejected by the server with ERR.
type ServerError struct {
	// Command is the verb that failed.
	Command string

	// Reason is the server's short reason, possibly empty.
	Reason string
}

func (e *ServerError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: rejected by server", e.Command)
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Reason)
}

// Reason returns the server's reason if err is a ServerError.
func Reason(err error) (string, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Reason, true
	}
	return "", false
}

// OverwritePolicy decides how Upload answers an overwrite prompt.
type OverwritePolicy int

const (
	// OverwriteNever declines; the existing file is kept and Upload fails.
	OverwriteNever OverwritePolicy = iota

	// OverwriteAlways replaces the existing file.
	OverwriteAlways
)

// Options configures a connection.
type Options struct {
	// Timeout bounds every single read and write. Zero uses DefaultTimeout.
	Timeout time.Duration

	// HandshakeToken is sent by Connect. Empty uses wire.Handshake.
	HandshakeToken string
}

// Entry is one line of a directory listing.
type Entry struct {
	// Kind is "file" or "directory".
	Kind string

	// Path is relative to the server root, slash separated on POSIX servers.
	Path string
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Kind == "directory" }

// Client is a connection to a fileshare server.
type Client struct {
	conn   *wire.Conn
	addr   string
	closed bool
}

// Dial opens a connection without logging on.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	return newClient(conn, addr, timeout), nil
}

func newClient(conn net.Conn, addr string, timeout time.Duration) *Client {
	return &Client{conn: wire.NewConn(conn, timeout), addr: addr}
}

// Connect dials addr and logs on.
func Connect(ctx context.Context, addr string, opts Options) (*Client, error) {
	c, err := Dial(ctx, addr, opts)
	if err != nil {
		return nil, err
	}

	token := opts.HandshakeToken
	if token == "" {
		token = wire.Handshake
	}
	if err := c.Logon(token); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Addr returns the address the client dialed.
func (c *Client) Addr() string { return c.addr }

// Logon sends the handshake token. On rejection the server closes the
// connection and the client must be discarded.
func (c *Client) Logon(token string) error {
	resp, err := c.roundTrip("LOGON", []byte(token))
	if err != nil {
		return err
	}
	if !resp.IsOK() {
		_ = c.Close()
		return &ServerError{Command: "LOGON", Reason: resp.Payload}
	}
	return nil
}

// Upload sends size bytes from r as fileName inside destDir (empty: the root).
//
// If the file exists the server asks for confirmation, answered according
// to policy. When r yields fewer than size bytes the connection can no
// longer be trusted and is closed.
func (c *Client) Upload(r io.Reader, size int64, fileName, destDir string, policy OverwritePolicy) error {
	if strings.ContainsAny(fileName, " \t\r\n") || strings.ContainsAny(destDir, " \t\r\n") {
		return fmt.Errorf("%s: names with whitespace cannot be sent", wire.VerbUpload)
	}

	args := []string{strconv.FormatInt(size, 10), fileName}
	if destDir != "" {
		args = append(args, destDir)
	}
	resp, err := c.command(wire.VerbUpload, args...)
	if err != nil {
		return err
	}

	if resp.Status == wire.StatusOverwrite {
		answer := "NO"
		if policy == OverwriteAlways {
			answer = "OK: overwrite file"
		}
		if resp, err = c.roundTrip(wire.VerbUpload, []byte(answer)); err != nil {
			return err
		}
	}
	if err := c.expectOK(wire.VerbUpload, resp); err != nil {
		return err
	}

	if _, err := io.CopyN(c.conn, r, size); err != nil {
		_ = c.Close()
		return fmt.Errorf("%s: send payload: %w", wire.VerbUpload, err)
	}

	resp, err = c.readResponse(wire.VerbUpload)
	if err != nil {
		return err
	}
	return c.expectOK(wire.VerbUpload, resp)
}

// Download writes the content of the remote file at path to w and returns
// the number of bytes received.
//
// A failing w does not desynchronize the connection: the remaining bytes
// are drained and the write error is returned.
func (c *Client) Download(path string, w io.Writer) (int64, error) {
	resp, err := c.command(wire.VerbDownload, path)
	if err != nil {
		return 0, err
	}
	if err := c.expectOK(wire.VerbDownload, resp); err != nil {
		return 0, err
	}

	size, err := strconv.ParseInt(resp.Payload, 10, 64)
	if err != nil || size < 0 {
		_ = c.Close()
		return 0, fmt.Errorf("%s: %w: bad size %q", wire.VerbDownload, ErrProtocol, resp.Payload)
	}

	if err := c.conn.WriteResponse(wire.OK("")); err != nil {
		_ = c.Close()
		return 0, fmt.Errorf("%s: send ready: %w", wire.VerbDownload, err)
	}

	n, writeErr, readErr := wire.CopyExact(w, c.conn, size)
	if readErr != nil {
		_ = c.Close()
		return n, fmt.Errorf("%s: received %d of %d bytes: %w", wire.VerbDownload, n, size, readErr)
	}

	resp, err = c.roundTrip(wire.VerbDownload, wire.OK("").Encode())
	if err != nil {
		return n, err
	}
	if err := c.expectOK(wire.VerbDownload, resp); err != nil {
		return n, err
	}
	if writeErr != nil {
		return n, fmt.Errorf("%s: write local copy: %w", wire.VerbDownload, writeErr)
	}
	return n, nil
}

// Delete removes a remote file.
func (c *Client) Delete(path string) error {
	return c.simple(wire.VerbDelete, path)
}

// SubfolderCreate creates one directory level.
func (c *Client) SubfolderCreate(path string) error {
	return c.simple(wire.VerbSubfolder, wire.SubfolderCreate, path)
}

// SubfolderDelete removes an empty directory.
func (c *Client) SubfolderDelete(path string) error {
	return c.simple(wire.VerbSubfolder, wire.SubfolderDelete, path)
}

// Dir lists a remote directory (empty path: the root).
func (c *Client) Dir(path string) ([]Entry, error) {
	var args []string
	if path != "" {
		args = []string{path}
	}
	if err := c.send(wire.VerbDir, args...); err != nil {
		return nil, err
	}

	frame, err := c.readListing()
	if err != nil {
		return nil, err
	}
	resp, err := wire.ParseResponse(frame)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%s: %w: %v", wire.VerbDir, ErrProtocol, err)
	}
	if err := c.expectOK(wire.VerbDir, resp); err != nil {
		return nil, err
	}
	return ParseListing(resp.Payload)
}

// Logoff ends the session and closes the connection.
func (c *Client) Logoff() error {
	if c.closed {
		return nil
	}
	err := c.conn.WriteFrame(wire.Command{Verb: wire.VerbLogoff}.Encode())
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close closes the connection without logging off.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// ParseListing decodes a DIR payload.
func ParseListing(payload string) ([]Entry, error) {
	body, ok := strings.CutPrefix(payload, `"`)
	if ok {
		body, ok = strings.CutSuffix(body, `"`)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w: unquoted listing", wire.VerbDir, ErrProtocol)
	}
	if body == "" {
		return []Entry{}, nil
	}

	lines := strings.Split(body, "\n")
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		kind, p, found := strings.Cut(line, " ")
		if !found {
			return nil, fmt.Errorf("%s: %w: bad entry %q", wire.VerbDir, ErrProtocol, line)
		}
		entries = append(entries, Entry{Kind: kind, Path: p})
	}
	return entries, nil
}

// ============================================================================
// Exchange helpers
// ============================================================================

func (c *Client) simple(verb string, args ...string) error {
	resp, err := c.command(verb, args...)
	if err != nil {
		return err
	}
	return c.expectOK(verb, resp)
}

func (c *Client) command(verb string, args ...string) (wire.Response, error) {
	if err := c.send(verb, args...); err != nil {
		return wire.Response{}, err
	}
	return c.readResponse(verb)
}

func (c *Client) send(verb string, args ...string) error {
	if c.closed {
		return ErrClosed
	}
	if err := c.conn.WriteFrame(wire.Command{Verb: verb, Args: args}.Encode()); err != nil {
		_ = c.Close()
		return fmt.Errorf("%s: %w", verb, err)
	}
	return nil
}

func (c *Client) roundTrip(verb string, frame []byte) (wire.Response, error) {
	if c.closed {
		return wire.Response{}, ErrClosed
	}
	if err := c.conn.WriteFrame(frame); err != nil {
		_ = c.Close()
		return wire.Response{}, fmt.Errorf("%s: %w", verb, err)
	}
	return c.readResponse(verb)
}

func (c *Client) readResponse(verb string) (wire.Response, error) {
	frame, err := c.conn.ReadFrame()
	if err != nil {
		_ = c.Close()
		return wire.Response{}, fmt.Errorf("%s: read response: %w", verb, err)
	}
	resp, err := wire.ParseResponse(frame)
	if err != nil {
		_ = c.Close()
		return wire.Response{}, fmt.Errorf("%s: %w: %v", verb, ErrProtocol, err)
	}
	return resp, nil
}

// expectOK maps ERR to a ServerError and anything but OK to ErrProtocol.
func (c *Client) expectOK(verb string, resp wire.Response) error {
	switch resp.Status {
	case wire.StatusOK:
		return nil
	case wire.StatusErr:
		return &ServerError{Command: verb, Reason: resp.Payload}
	default:
		_ = c.Close()
		return fmt.Errorf("%s: %w: unexpected %s", verb, ErrProtocol, resp.Status)
	}
}

// readListing reads a DIR response, which may span several frames when the
// listing is larger than one socket read.
func (c *Client) readListing() (string, error) {
	var b strings.Builder
	for {
		frame, err := c.conn.ReadFrame()
		if err != nil {
			_ = c.Close()
			return "", fmt.Errorf("%s: read response: %w", wire.VerbDir, err)
		}
		b.WriteString(frame)

		s := b.String()
		if !strings.HasPrefix(s, wire.StatusOK+` "`) {
			return s, nil
		}
		if len(s) >= len(wire.StatusOK)+3 && strings.HasSuffix(s, `"`) {
			return s, nil
		}
	}
}
