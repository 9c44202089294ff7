package wire

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		verb  string
		args  []string
		label string
	}{
		{"Upload", "UPLOAD 5 test.txt", VerbUpload, []string{"5", "test.txt"}, "UPLOAD"},
		{"UploadWithDir", "UPLOAD 5 a/b.txt docs", VerbUpload, []string{"5", "a/b.txt", "docs"}, "UPLOAD"},
		{"LowerCaseVerb", "dir docs", VerbDir, []string{"docs"}, "DIR"},
		{"ExtraWhitespace", "  DELETE   x.txt \r\n", VerbDelete, []string{"x.txt"}, "DELETE"},
		{"Subfolder", "SUBFOLDER create docs", VerbSubfolder, []string{"create", "docs"}, "SUBFOLDER_CREATE"},
		{"SubfolderBadAction", "SUBFOLDER move docs", VerbSubfolder, []string{"move", "docs"}, "SUBFOLDER"},
		{"Unknown", "FROBNICATE", "FROBNICATE", []string{}, "UNKNOWN"},
		{"Blank", "   ", "", nil, "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := ParseCommand(tt.frame)
			assert.Equal(t, tt.verb, cmd.Verb)
			if len(tt.args) == 0 {
				assert.Empty(t, cmd.Args)
			} else {
				assert.Equal(t, tt.args, cmd.Args)
			}
			assert.Equal(t, tt.frame, cmd.Raw)
			assert.Equal(t, tt.label, cmd.Name())
		})
	}
}

func TestResponseEncode(t *testing.T) {
	assert.Equal(t, "OK", string(OK("").Encode()))
	assert.Equal(t, "OK 5", string(OK("5").Encode()))
	assert.Equal(t, "ERR resource busy", string(Err("resource busy").Encode()))
	assert.Equal(t, "OVR", string(Overwrite().Encode()))
}

func TestParseResponse(t *testing.T) {
	r, err := ParseResponse("OK 12")
	require.NoError(t, err)
	assert.True(t, r.IsOK())
	assert.Equal(t, "12", r.Payload)

	r, err = ParseResponse(`OK "file a.txt"`)
	require.NoError(t, err)
	assert.Equal(t, `"file a.txt"`, r.Payload)

	r, err = ParseResponse("ERR file not found")
	require.NoError(t, err)
	assert.Equal(t, StatusErr, r.Status)
	assert.Equal(t, "file not found", r.Payload)

	r, err = ParseResponse("OVR")
	require.NoError(t, err)
	assert.Equal(t, StatusOverwrite, r.Status)

	_, err = ParseResponse("---> hello")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestIsAffirmative(t *testing.T) {
	assert.True(t, IsAffirmative("OK"))
	assert.True(t, IsAffirmative("OK: overwrite file"))
	assert.True(t, IsAffirmative(" OK\n"))
	assert.False(t, IsAffirmative("ERR: client does not want to overwite file"))
	assert.False(t, IsAffirmative("no"))
	assert.False(t, IsAffirmative(""))
}

func TestLeadingAffirmatives(t *testing.T) {
	assert.Equal(t, 0, LeadingAffirmatives(""))
	assert.Equal(t, 0, LeadingAffirmatives("ERR"))
	assert.Equal(t, 1, LeadingAffirmatives("OK"))
	assert.Equal(t, 1, LeadingAffirmatives("OK: overwrite file"))
	assert.Equal(t, 2, LeadingAffirmatives("OKOK"))
	assert.Equal(t, 2, LeadingAffirmatives("OK OK\n"))
	assert.Equal(t, 1, LeadingAffirmatives("OKERR"))
}

func TestConn_Frames(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sc := NewConn(server, time.Second)
	cc := NewConn(client, time.Second)

	go func() {
		_ = cc.WriteFrame([]byte("LOGON"))
	}()
	frame, err := sc.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "LOGON", frame)

	go func() {
		_ = sc.WriteResponse(OK(""))
	}()
	frame, err = cc.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "OK", frame)
}

func TestConn_ReadFrameWithinTimesOut(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sc := NewConn(server, time.Second)
	_, err := sc.ReadFrameWithin(10 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

func TestConn_ReadFrameClosedPeer(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	require.NoError(t, client.Close())

	_, err := NewConn(server, time.Second).ReadFrame()
	require.Error(t, err)
	assert.False(t, IsTimeout(err))
}
