package fileshare

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/Ravioli45/CNT3004-file-sharing/internal/logger"
	"github.com/Ravioli45/CNT3004-file-sharing/internal/protocol/handlers"
	"github.com/Ravioli45/CNT3004-file-sharing/internal/protocol/wire"
	"github.com/google/uuid"
)

// sessionState is the position of a session in its lifecycle.
type sessionState int

const (
	stateHandshaking sessionState = iota
	stateActive
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateHandshaking:
		return "handshaking"
	case stateActive:
		return "active"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	errShutdown = errors.New("server shutting down")
	errIdle     = errors.New("idle timeout")
)

// session serves one client connection: handshake, then a strictly
// sequential command loop, then close. A session owns its socket; the only
// state it shares with other sessions lives in the adapter's handler.
type session struct {
	server     *FileshareAdapter
	conn       *wire.Conn
	raw        net.Conn
	id         string
	clientAddr string
	state      sessionState
}

func newSession(server *FileshareAdapter, conn net.Conn) *session {
	return &session{
		server:     server,
		conn:       wire.NewConn(conn, server.config.TransferTimeout),
		raw:        conn,
		id:         uuid.NewString(),
		clientAddr: conn.RemoteAddr().String(),
		state:      stateHandshaking,
	}
}

// Serve runs the session until logoff, a protocol error, idle timeout or
// shutdown. Panics are contained to this session.
func (s *session) Serve(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in session %s from %s: %v", s.id, s.clientAddr, r)
		}
		s.state = stateClosed
		_ = s.raw.Close()
	}()

	logger.Debug("Session %s: new connection from %s", s.id, s.clientAddr)

	if err := s.handshake(); err != nil {
		logger.Warn("Session %s: %v from %s", s.id, err, s.clientAddr)
		return
	}
	s.state = stateActive
	logger.Info("Session %s: client %s logged on", s.id, s.clientAddr)

	for s.state == stateActive {
		frame, err := s.nextFrame()
		if err != nil {
			s.logEnd(err)
			return
		}
		if !s.handleFrame(ctx, frame) {
			return
		}
	}
}

// handshake reads exactly one frame and requires it to equal the token.
func (s *session) handshake() error {
	frame, err := s.conn.ReadFrame()
	if err == nil && strings.TrimSpace(frame) == s.server.config.HandshakeToken {
		if err := s.conn.WriteResponse(wire.OK("")); err != nil {
			return fmt.Errorf("%w: write reply: %v", wire.ErrHandshake, err)
		}
		return nil
	}

	s.server.metrics.RecordHandshakeFailure()
	_ = s.conn.WriteResponse(wire.Err(""))
	if err != nil {
		return fmt.Errorf("%w: %v", wire.ErrHandshake, err)
	}
	return fmt.Errorf("%w: unexpected frame %q", wire.ErrHandshake, truncate(frame, 32))
}

// nextFrame waits for the next command frame.
//
// The wait is sliced into PollInterval ticks. A tick expiring is not an
// error: it is the moment the session checks the shutdown flag and its idle
// deadline before waiting again.
func (s *session) nextFrame() (string, error) {
	cfg := s.server.config
	var idleDeadline time.Time
	if cfg.IdleTimeout > 0 {
		idleDeadline = time.Now().Add(cfg.IdleTimeout)
	}

	for {
		select {
		case <-s.server.shutdown:
			return "", errShutdown
		default:
		}

		wait := cfg.PollInterval
		if !idleDeadline.IsZero() {
			remaining := time.Until(idleDeadline)
			if remaining <= 0 {
				return "", errIdle
			}
			if remaining < wait {
				wait = remaining
			}
		}

		frame, err := s.conn.ReadFrameWithin(wait)
		if err == nil {
			return frame, nil
		}
		if !wire.IsTimeout(err) {
			return "", err
		}
	}
}

// handleFrame runs one command and writes its final status. It returns false
// when the session must end.
func (s *session) handleFrame(ctx context.Context, frame string) bool {
	cmd := wire.ParseCommand(frame)

	if cmd.Verb == wire.VerbLogoff || cmd.Verb == wire.VerbLogout {
		logger.Info("Session %s: client %s logged off", s.id, s.clientAddr)
		s.state = stateClosed
		return false
	}

	name := cmd.Name()
	logger.Debug("Session %s: command %s args=%q", s.id, name, cmd.Args)

	m := s.server.metrics
	m.RecordCommandStart(name)
	defer m.RecordCommandEnd(name)

	cctx := &handlers.CommandContext{
		Context:    ctx,
		ClientAddr: s.clientAddr,
		SessionID:  s.id,
	}

	start := time.Now()
	resp, err := s.server.handler.Dispatch(cctx, s.conn, cmd)
	duration := time.Since(start)

	if err == nil {
		m.RecordCommand(name, duration, "")
		return s.reply(resp)
	}

	if cmdErr, ok := handlers.AsCommandError(err); ok {
		m.RecordCommand(name, duration, cmdErr.Code.String())
		logger.Debug("Session %s: %s failed: code=%s error=%v", s.id, name, cmdErr.Code, cmdErr)
		return s.reply(wire.Err(cmdErr.Message))
	}

	// Anything else leaves the connection in an unknown state.
	m.RecordCommand(name, duration, "Fatal")
	switch {
	case errors.Is(err, handlers.ErrTransferSize):
		logger.Warn("Session %s: %s desynchronized, closing: %v", s.id, name, err)
		_ = s.conn.WriteResponse(wire.Err(handlers.ReasonTransferFailed))
	case errors.Is(err, context.Canceled):
		logger.Debug("Session %s: %s refused during shutdown", s.id, name)
		_ = s.conn.WriteResponse(wire.Err(handlers.ReasonShuttingDown))
	default:
		logger.Debug("Session %s: %s aborted: %v", s.id, name, err)
	}
	s.state = stateClosed
	return false
}

func (s *session) reply(resp wire.Response) bool {
	if err := s.conn.WriteResponse(resp); err != nil {
		logger.Debug("Session %s: write response to %s: %v", s.id, s.clientAddr, err)
		s.state = stateClosed
		return false
	}
	return true
}

func (s *session) logEnd(err error) {
	switch {
	case errors.Is(err, errShutdown):
		logger.Debug("Session %s: closed due to server shutdown", s.id)
	case errors.Is(err, errIdle):
		logger.Info("Session %s: client %s idle for %v, closing", s.id, s.clientAddr, s.server.config.IdleTimeout)
	case errors.Is(err, io.EOF):
		logger.Debug("Session %s: connection closed by client %s", s.id, s.clientAddr)
	default:
		logger.Debug("Session %s: read error from %s: %v", s.id, s.clientAddr, err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
