package fileshare

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Ravioli45/CNT3004-file-sharing/internal/lockmap"
	"github.com/Ravioli45/CNT3004-file-sharing/internal/pathguard"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/client"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/metrics/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Harness
// ============================================================================

type testServer struct {
	adapter *FileshareAdapter
	guard   *pathguard.Guard
	locks   *lockmap.Table
	root    string
	addr    string

	cancel   context.CancelFunc
	done     chan error
	stopOnce sync.Once
	stopErr  error
}

func startServer(t *testing.T, mutate func(*FileshareConfig)) *testServer {
	t.Helper()

	root := t.TempDir()
	guard, err := pathguard.New(root)
	require.NoError(t, err)
	locks := lockmap.New()

	cfg := FileshareConfig{
		Enabled:            true,
		PollInterval:       50 * time.Millisecond,
		TransferTimeout:    2 * time.Second,
		ShutdownTimeout:    2 * time.Second,
		MetricsLogInterval: -1,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	m := prometheus.NewFileshareMetricsWith(prom.NewRegistry())
	a, err := New(cfg, guard, locks, m)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s := &testServer{
		adapter: a,
		guard:   guard,
		locks:   locks,
		root:    guard.Root(),
		addr:    ln.Addr().String(),
		cancel:  cancel,
		done:    make(chan error, 1),
	}
	go func() { s.done <- a.ServeListener(ctx, ln) }()
	<-a.Listening()

	t.Cleanup(func() { _ = s.stop(t) })
	return s
}

func (s *testServer) stop(t *testing.T) error {
	s.stopOnce.Do(func() {
		s.cancel()
		select {
		case s.stopErr = <-s.done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return s.stopErr
}

func (s *testServer) connect(t *testing.T) *client.Client {
	t.Helper()
	c, err := client.Connect(context.Background(), s.addr, client.Options{Timeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// rawConn speaks the protocol frame by frame.
type rawConn struct {
	t    *testing.T
	conn net.Conn
	buf  []byte
}

func (s *testServer) dialRaw(t *testing.T) *rawConn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", s.addr, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &rawConn{t: t, conn: conn, buf: make([]byte, 4096)}
}

func (r *rawConn) send(frame string) {
	r.t.Helper()
	_, err := r.conn.Write([]byte(frame))
	require.NoError(r.t, err)
}

func (r *rawConn) recv() string {
	r.t.Helper()
	require.NoError(r.t, r.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := r.conn.Read(r.buf)
	require.NoError(r.t, err)
	return string(r.buf[:n])
}

func (r *rawConn) recvExact(n int) string {
	r.t.Helper()
	require.NoError(r.t, r.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	data := make([]byte, n)
	_, err := io.ReadFull(r.conn, data)
	require.NoError(r.t, err)
	return string(data)
}

// expectClosed waits for the server to close the connection.
func (r *rawConn) expectClosed(within time.Duration) {
	r.t.Helper()
	require.NoError(r.t, r.conn.SetReadDeadline(time.Now().Add(within)))
	_, err := r.conn.Read(r.buf)
	require.ErrorIs(r.t, err, io.EOF)
}

func (r *rawConn) exchange(frame string) string {
	r.t.Helper()
	r.send(frame)
	return r.recv()
}

func (r *rawConn) logon() {
	r.t.Helper()
	require.Equal(r.t, "OK", r.exchange("LOGON"))
}

// ============================================================================
// Wire Scenarios
// ============================================================================

func TestSession_UploadThenDownloadFrames(t *testing.T) {
	s := startServer(t, nil)
	r := s.dialRaw(t)
	r.logon()

	assert.Equal(t, "OK", r.exchange("UPLOAD 5 test.txt"))
	assert.Equal(t, "OK", r.exchange("hello"))

	assert.Equal(t, "OK 5", r.exchange("DOWNLOAD test.txt"))
	r.send("OK")
	assert.Equal(t, "hello", r.recvExact(5))
	assert.Equal(t, "OK", r.exchange("OK"))

	r.send("LOGOFF")
	r.expectClosed(2 * time.Second)
}

func TestSession_EmptyFileDownloads(t *testing.T) {
	s := startServer(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(s.root, "empty"), nil, 0o644))

	c := s.connect(t)
	for i := 0; i < 5; i++ {
		var buf bytes.Buffer
		n, err := c.Download("empty", &buf)
		require.NoError(t, err, "download %d", i)
		assert.Zero(t, n)
		assert.Zero(t, buf.Len())
	}

	entries, err := c.Dir("")
	require.NoError(t, err)
	assert.Equal(t, []client.Entry{{Kind: "file", Path: "empty"}}, entries)
	assert.False(t, s.locks.Held(filepath.Join(s.root, "empty")))
}

func TestSession_EmptyFileCoalescedAcks(t *testing.T) {
	s := startServer(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(s.root, "empty"), nil, 0o644))

	r := s.dialRaw(t)
	r.logon()

	assert.Equal(t, "OK 0", r.exchange("DOWNLOAD empty"))
	assert.Equal(t, "OK", r.exchange("OKOK"))
	assert.Equal(t, "OK 0", r.exchange("DOWNLOAD empty"))
}

func TestSession_OverwriteDeclinedLeavesFile(t *testing.T) {
	s := startServer(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(s.root, "test.txt"), []byte("original"), 0o644))

	r := s.dialRaw(t)
	r.logon()

	assert.Equal(t, "OVR", r.exchange("UPLOAD 5 test.txt"))
	assert.Equal(t, "ERR overwrite declined", r.exchange("NO"))

	data, err := os.ReadFile(filepath.Join(s.root, "test.txt"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	// The session is still usable and the lock was released.
	assert.Equal(t, "OVR", r.exchange("UPLOAD 3 test.txt"))
	assert.Equal(t, "OK", r.exchange("OK: overwrite file"))
	assert.Equal(t, "OK", r.exchange("new"))

	data, err = os.ReadFile(filepath.Join(s.root, "test.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	assert.False(t, s.locks.Held(filepath.Join(s.root, "test.txt")))
}

func TestSession_HandshakeRejected(t *testing.T) {
	s := startServer(t, nil)

	r := s.dialRaw(t)
	assert.Equal(t, "ERR", r.exchange("HELLO"))
	r.expectClosed(2 * time.Second)
}

func TestSession_HandshakeTrimsWhitespace(t *testing.T) {
	s := startServer(t, nil)
	r := s.dialRaw(t)
	assert.Equal(t, "OK", r.exchange("LOGON\r\n"))
}

func TestSession_CustomHandshakeToken(t *testing.T) {
	s := startServer(t, func(c *FileshareConfig) { c.HandshakeToken = "OPEN-SESAME" })

	_, err := client.Connect(context.Background(), s.addr, client.Options{Timeout: 2 * time.Second})
	_, ok := client.Reason(err)
	require.True(t, ok, "expected rejection, got %v", err)

	c, err := client.Connect(context.Background(), s.addr, client.Options{
		Timeout:        2 * time.Second,
		HandshakeToken: "OPEN-SESAME",
	})
	require.NoError(t, err)
	require.NoError(t, c.Logoff())
}

func TestSession_ErrorsKeepSessionOpen(t *testing.T) {
	s := startServer(t, nil)
	r := s.dialRaw(t)
	r.logon()

	tests := []struct {
		frame string
		want  string
	}{
		{"FROB x", "ERR unknown command"},
		{"   ", "ERR unknown command"},
		{"UPLOAD abc test.txt", "ERR invalid arguments"},
		{"DOWNLOAD", "ERR invalid arguments"},
		{"DOWNLOAD missing.txt", "ERR file not found"},
		{"DOWNLOAD ../../etc/passwd", "ERR file not found"},
		{"DELETE ../outside.txt", "ERR file not found"},
		{"DIR ../", "ERR directory not found"},
		{"DIR nowhere", "ERR directory not found"},
		{"SUBFOLDER MOVE x", "ERR invalid arguments"},
		{"SUBFOLDER DELETE .", "ERR can't delete root folder"},
		{"SUBFOLDER CREATE a/b", "ERR can't create directory"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.exchange(tt.frame), "frame %q", tt.frame)
	}

	assert.Equal(t, `OK ""`, r.exchange("DIR"))
}

func TestSession_LogoutAlias(t *testing.T) {
	s := startServer(t, nil)
	r := s.dialRaw(t)
	r.logon()
	r.send("logout")
	r.expectClosed(2 * time.Second)
}

func TestSession_ShortUploadClosesSession(t *testing.T) {
	s := startServer(t, nil)
	r := s.dialRaw(t)
	r.logon()

	assert.Equal(t, "OK", r.exchange("UPLOAD 10 short.txt"))
	r.send("abc")
	require.NoError(t, r.conn.(*net.TCPConn).CloseWrite())

	assert.Equal(t, "ERR transfer incomplete", r.recv())
	r.expectClosed(2 * time.Second)

	_, err := os.Stat(filepath.Join(s.root, "short.txt"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	entries, err := os.ReadDir(s.root)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary upload file left behind")
	assert.False(t, s.locks.Held(filepath.Join(s.root, "short.txt")))
}

func TestSession_UploadTooLarge(t *testing.T) {
	s := startServer(t, func(c *FileshareConfig) { c.MaxUploadSize = 4 })
	r := s.dialRaw(t)
	r.logon()

	assert.Equal(t, "ERR file too large", r.exchange("UPLOAD 5 big.txt"))
	assert.Equal(t, "OK", r.exchange("UPLOAD 4 ok.txt"))
	assert.Equal(t, "OK", r.exchange("abcd"))
}

// ============================================================================
// Locking Across Sessions
// ============================================================================

func TestSession_DownloadInProgressBlocksDelete(t *testing.T) {
	s := startServer(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(s.root, "a.txt"), []byte("hello"), 0o644))

	reader := s.dialRaw(t)
	reader.logon()
	deleter := s.connect(t)

	// The reader holds the lock from the size announcement on.
	assert.Equal(t, "OK 5", reader.exchange("DOWNLOAD a.txt"))

	reason, ok := client.Reason(deleter.Delete("a.txt"))
	require.True(t, ok)
	assert.Equal(t, "resource busy", reason)

	reader.send("OK")
	assert.Equal(t, "hello", reader.recvExact(5))
	assert.Equal(t, "OK", reader.exchange("OK"))

	require.NoError(t, deleter.Delete("a.txt"))
	assert.Zero(t, s.locks.Len())
}

func TestSession_HeldLockReportsBusy(t *testing.T) {
	s := startServer(t, nil)
	c := s.connect(t)

	target, err := s.guard.Resolve("a.txt")
	require.NoError(t, err)
	require.True(t, s.locks.TryAcquire(target))

	err = c.Upload(strings.NewReader("x"), 1, "a.txt", "", client.OverwriteNever)
	reason, ok := client.Reason(err)
	require.True(t, ok)
	assert.Equal(t, "resource busy", reason)

	s.locks.Release(target)
	require.NoError(t, c.Upload(strings.NewReader("x"), 1, "a.txt", "", client.OverwriteNever))
}

func TestSession_ConcurrentUploadsSameFile(t *testing.T) {
	s := startServer(t, nil)

	const workers = 8
	payloads := make([]string, workers)
	results := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		payloads[i] = strings.Repeat(fmt.Sprintf("%d", i), 64*1024)
		c := s.connect(t)

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Upload(strings.NewReader(payloads[i]), int64(len(payloads[i])), "shared.bin", "", client.OverwriteAlways)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		reason, ok := client.Reason(err)
		require.True(t, ok, "unexpected error: %v", err)
		assert.Equal(t, "resource busy", reason)
	}
	require.GreaterOrEqual(t, succeeded, 1)

	data, err := os.ReadFile(filepath.Join(s.root, "shared.bin"))
	require.NoError(t, err)
	assert.Contains(t, payloads, string(data), "file must hold exactly one complete upload")
	assert.False(t, s.locks.Held(filepath.Join(s.root, "shared.bin")))
}

// ============================================================================
// Client Round Trips
// ============================================================================

func TestSession_ClientWorkflow(t *testing.T) {
	s := startServer(t, nil)
	c := s.connect(t)

	require.NoError(t, c.SubfolderCreate("docs"))
	reason, ok := client.Reason(c.SubfolderCreate("docs"))
	require.True(t, ok)
	assert.Equal(t, "can't create directory", reason)

	payload := bytes.Repeat([]byte("0123456789"), 20000)
	require.NoError(t, c.Upload(bytes.NewReader(payload), int64(len(payload)), "/home/me/report.bin", "docs", client.OverwriteNever))

	err := c.Upload(bytes.NewReader(payload), int64(len(payload)), "report.bin", "docs", client.OverwriteNever)
	reason, ok = client.Reason(err)
	require.True(t, ok)
	assert.Equal(t, "overwrite declined", reason)

	entries, err := c.Dir("")
	require.NoError(t, err)
	assert.Equal(t, []client.Entry{{Kind: "directory", Path: "docs"}}, entries)

	entries, err = c.Dir("docs")
	require.NoError(t, err)
	assert.Equal(t, []client.Entry{{Kind: "file", Path: filepath.Join("docs", "report.bin")}}, entries)

	var buf bytes.Buffer
	n, err := c.Download("docs/report.bin", &buf)
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), n)
	assert.Equal(t, payload, buf.Bytes())

	reason, ok = client.Reason(c.SubfolderDelete("docs"))
	require.True(t, ok)
	assert.Equal(t, "can't delete non-empty folder", reason)

	require.NoError(t, c.Delete("docs/report.bin"))
	require.NoError(t, c.SubfolderDelete("docs"))

	entries, err = c.Dir("")
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, c.Logoff())
	assert.Zero(t, s.locks.Len())
}

func TestSession_LargeListing(t *testing.T) {
	s := startServer(t, nil)
	for i := 0; i < 150; i++ {
		name := filepath.Join(s.root, fmt.Sprintf("some-longer-file-name-%03d.txt", i))
		require.NoError(t, os.WriteFile(name, nil, 0o644))
	}

	c := s.connect(t)
	entries, err := c.Dir("")
	require.NoError(t, err)
	require.Len(t, entries, 150)
	assert.Equal(t, "some-longer-file-name-000.txt", entries[0].Path)
	assert.Equal(t, "some-longer-file-name-149.txt", entries[149].Path)
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestSession_IdleTimeout(t *testing.T) {
	s := startServer(t, func(c *FileshareConfig) { c.IdleTimeout = 200 * time.Millisecond })
	r := s.dialRaw(t)
	r.logon()

	start := time.Now()
	r.expectClosed(3 * time.Second)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestSession_IdleSessionStaysOpenByDefault(t *testing.T) {
	s := startServer(t, func(c *FileshareConfig) { c.PollInterval = 20 * time.Millisecond })
	require.Zero(t, s.adapter.config.IdleTimeout)

	r := s.dialRaw(t)
	r.logon()

	// Many poll ticks pass without a command.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, `OK ""`, r.exchange("DIR"))
}

func TestSession_ShutdownClosesIdleSessions(t *testing.T) {
	s := startServer(t, nil)

	r := s.dialRaw(t)
	r.logon()
	other := s.dialRaw(t)
	other.logon()

	require.Eventually(t, func() bool { return s.adapter.GetActiveConnections() == 2 },
		2*time.Second, 10*time.Millisecond)

	start := time.Now()
	require.NoError(t, s.stop(t))
	assert.Less(t, time.Since(start), 2*time.Second)

	// Closed without a status frame: nothing was asked.
	r.expectClosed(time.Second)
	other.expectClosed(time.Second)
	assert.Zero(t, s.adapter.GetActiveConnections())

	_, err := net.DialTimeout("tcp", s.addr, 500*time.Millisecond)
	assert.Error(t, err, "listener still accepting after shutdown")
}

func TestSession_MaxConnectionsQueuesAccepts(t *testing.T) {
	s := startServer(t, func(c *FileshareConfig) { c.MaxConnections = 1 })

	first := s.connect(t)

	// The second connection completes the TCP handshake in the backlog but
	// is not served until the first session ends.
	second := s.dialRaw(t)
	second.send("LOGON")
	require.NoError(t, second.conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err := second.conn.Read(second.buf)
	require.Error(t, err)

	require.NoError(t, first.Logoff())
	assert.Equal(t, "OK", second.recv())
}

func TestSession_StateString(t *testing.T) {
	assert.Equal(t, "handshaking", stateHandshaking.String())
	assert.Equal(t, "active", stateActive.String())
	assert.Equal(t, "closed", stateClosed.String())
	assert.Equal(t, "state(7)", sessionState(7).String())
}
