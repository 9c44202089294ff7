package client

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer plays the server side of a net.Pipe from a script.
type fakeServer struct {
	t    *testing.T
	conn net.Conn
	buf  []byte
}

func (f *fakeServer) expect(frame string) {
	_ = f.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := f.conn.Read(f.buf)
	if assert.NoError(f.t, err) {
		assert.Equal(f.t, frame, string(f.buf[:n]))
	}
}

func (f *fakeServer) send(data string) {
	_ = f.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err := f.conn.Write([]byte(data))
	assert.NoError(f.t, err)
}

func pipeClient(t *testing.T, script func(f *fakeServer)) (*Client, <-chan struct{}) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	t.Cleanup(func() {
		_ = clientSide.Close()
		_ = serverSide.Close()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		script(&fakeServer{t: t, conn: serverSide, buf: make([]byte, 64*1024)})
	}()
	return newClient(clientSide, "pipe", 2*time.Second), done
}

func TestParseListing(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []Entry
		wantErr bool
	}{
		{name: "empty", payload: `""`, want: []Entry{}},
		{name: "single file", payload: `"file a.txt"`, want: []Entry{{Kind: "file", Path: "a.txt"}}},
		{
			name:    "mixed",
			payload: "\"directory docs\nfile docs/b.txt\"",
			want:    []Entry{{Kind: "directory", Path: "docs"}, {Kind: "file", Path: "docs/b.txt"}},
		},
		{name: "unquoted", payload: "file a.txt", wantErr: true},
		{name: "missing closing quote", payload: `"file a.txt`, wantErr: true},
		{name: "entry without path", payload: `"file"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseListing(tt.payload)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrProtocol)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogonRejected(t *testing.T) {
	c, done := pipeClient(t, func(f *fakeServer) {
		f.expect("HELLO")
		f.send("ERR")
	})

	err := c.Logon("HELLO")
	<-done

	reason, ok := Reason(err)
	require.True(t, ok, "expected ServerError, got %v", err)
	assert.Empty(t, reason)
	assert.ErrorIs(t, c.Delete("x"), ErrClosed)
}

func TestUploadOverwriteDeclined(t *testing.T) {
	c, done := pipeClient(t, func(f *fakeServer) {
		f.expect("UPLOAD 5 a.txt docs")
		f.send("OVR")
		f.expect("NO")
		f.send("ERR overwrite declined")
	})

	err := c.Upload(strings.NewReader("hello"), 5, "a.txt", "docs", OverwriteNever)
	<-done

	reason, ok := Reason(err)
	require.True(t, ok, "expected ServerError, got %v", err)
	assert.Equal(t, "overwrite declined", reason)
}

func TestUploadOverwriteAccepted(t *testing.T) {
	c, done := pipeClient(t, func(f *fakeServer) {
		f.expect("UPLOAD 5 a.txt")
		f.send("OVR")
		f.expect("OK: overwrite file")
		f.send("OK")
		f.expect("hello")
		f.send("OK")
	})

	require.NoError(t, c.Upload(strings.NewReader("hello"), 5, "a.txt", "", OverwriteAlways))
	<-done
}

func TestUploadRejectsWhitespaceNames(t *testing.T) {
	c, _ := pipeClient(t, func(f *fakeServer) {})
	err := c.Upload(strings.NewReader(""), 0, "my file.txt", "", OverwriteNever)
	require.Error(t, err)
}

func TestDirSpansFrames(t *testing.T) {
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, fmt.Sprintf("file name-%03d.txt", i))
	}
	payload := `"` + strings.Join(lines, "\n") + `"`
	require.Greater(t, len(payload), 1024)

	c, done := pipeClient(t, func(f *fakeServer) {
		f.expect("DIR sub")
		f.send("OK " + payload)
	})

	entries, err := c.Dir("sub")
	<-done

	require.NoError(t, err)
	require.Len(t, entries, 200)
	assert.Equal(t, Entry{Kind: "file", Path: "name-199.txt"}, entries[199])
}

func TestDirError(t *testing.T) {
	c, done := pipeClient(t, func(f *fakeServer) {
		f.expect("DIR")
		f.send("ERR directory not found")
	})

	_, err := c.Dir("")
	<-done

	reason, ok := Reason(err)
	require.True(t, ok)
	assert.Equal(t, "directory not found", reason)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestDownloadDrainsOnLocalWriteError(t *testing.T) {
	c, done := pipeClient(t, func(f *fakeServer) {
		f.expect("DOWNLOAD a.txt")
		f.send("OK 10")
		f.expect("OK")
		f.send("0123456789")
		f.expect("OK")
		f.send("OK")
		f.expect("DELETE a.txt")
		f.send("OK")
	})

	n, err := c.Download("a.txt", failingWriter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.EqualValues(t, 10, n)

	// The stream is still aligned.
	require.NoError(t, c.Delete("a.txt"))
	<-done
}

func TestDownload(t *testing.T) {
	c, done := pipeClient(t, func(f *fakeServer) {
		f.expect("DOWNLOAD a.txt")
		f.send("OK 5")
		f.expect("OK")
		f.send("hello")
		f.expect("OK")
		f.send("OK")
	})

	var buf bytes.Buffer
	n, err := c.Download("a.txt", &buf)
	<-done

	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
	assert.Equal(t, "hello", buf.String())
}

func TestDownloadBadSize(t *testing.T) {
	c, done := pipeClient(t, func(f *fakeServer) {
		f.expect("DOWNLOAD a.txt")
		f.send("OK lots")
	})

	_, err := c.Download("a.txt", &bytes.Buffer{})
	<-done
	require.ErrorIs(t, err, ErrProtocol)
}

func TestSubfolderCommands(t *testing.T) {
	c, done := pipeClient(t, func(f *fakeServer) {
		f.expect("SUBFOLDER CREATE docs")
		f.send("OK")
		f.expect("SUBFOLDER DELETE docs")
		f.send("ERR can't delete non-empty folder")
		f.expect("LOGOFF")
	})

	require.NoError(t, c.SubfolderCreate("docs"))

	reason, ok := Reason(c.SubfolderDelete("docs"))
	require.True(t, ok)
	assert.Equal(t, "can't delete non-empty folder", reason)

	require.NoError(t, c.Logoff())
	<-done
	require.NoError(t, c.Logoff())
}
