package wire

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// ErrHandshake is returned when a peer opens with anything but the handshake token.
var ErrHandshake = errors.New("handshake failed")

var _ io.ReadWriter = (*Conn)(nil)

// Conn is a framed, deadline-aware view of a network connection.
//
// Text frames are read with ReadFrame; raw transfer payloads go through Read
// and Write, each of which arms a fresh deadline of ioTimeout so a stalled
// peer cannot pin a session forever. A zero ioTimeout disables deadlines.
//
// Conn deliberately does not embed net.Conn: io.Copy would otherwise pick up
// the socket's ReadFrom and bypass the per-call deadlines.
//
// Conn is not safe for concurrent use; each session owns exactly one.
type Conn struct {
	conn      net.Conn
	ioTimeout time.Duration
	buf       [MaxFrameSize]byte
}

// NewConn wraps c. ioTimeout bounds every individual read and write.
func NewConn(c net.Conn, ioTimeout time.Duration) *Conn {
	return &Conn{conn: c, ioTimeout: ioTimeout}
}

// ReadFrame reads one text frame, waiting at most ioTimeout.
func (c *Conn) ReadFrame() (string, error) {
	return c.ReadFrameWithin(c.ioTimeout)
}

// ReadFrameWithin reads one text frame, waiting at most d (0 means no limit).
//
// A timeout is reported as a net.Error with Timeout() == true; callers that
// poll use it as a tick, not a failure.
func (c *Conn) ReadFrameWithin(d time.Duration) (string, error) {
	if err := c.conn.SetReadDeadline(deadline(d)); err != nil {
		return "", fmt.Errorf("set read deadline: %w", err)
	}
	for {
		n, err := c.conn.Read(c.buf[:])
		if n > 0 {
			return string(c.buf[:n]), nil
		}
		if err != nil {
			return "", err
		}
	}
}

// WriteFrame writes raw bytes as one frame.
func (c *Conn) WriteFrame(frame []byte) error {
	if _, err := c.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// WriteResponse encodes and writes a status frame.
func (c *Conn) WriteResponse(r Response) error {
	return c.WriteFrame(r.Encode())
}

// Read reads raw payload bytes.
func (c *Conn) Read(p []byte) (int, error) {
	if err := c.conn.SetReadDeadline(deadline(c.ioTimeout)); err != nil {
		return 0, fmt.Errorf("set read deadline: %w", err)
	}
	return c.conn.Read(p)
}

// Write writes raw payload bytes.
func (c *Conn) Write(p []byte) (int, error) {
	if err := c.conn.SetWriteDeadline(deadline(c.ioTimeout)); err != nil {
		return 0, fmt.Errorf("set write deadline: %w", err)
	}
	return c.conn.Write(p)
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.conn.Close() }

// IsTimeout reports whether err is a network timeout.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func deadline(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}
