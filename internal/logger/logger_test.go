package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"Error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel("WARN")
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetLevel("INFO")
	})

	Info("hidden %d", 1)
	Warn("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
	assert.False(t, IsDebug())
}

func TestInit_JSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fileshare.log")
	require.NoError(t, Init(Config{Level: "debug", Format: "json", Output: path}))
	t.Cleanup(func() {
		_ = Init(Config{Level: "INFO", Format: "text", Output: "stdout"})
	})

	Debug("session %s opened", "abc")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	line := strings.TrimSpace(string(data))
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "session abc opened", entry["msg"])
	assert.True(t, IsDebug())
}

func TestSetOutput_KeepsFormat(t *testing.T) {
	require.NoError(t, Init(Config{Level: "warn", Format: "json", Output: "stderr"}))
	t.Cleanup(func() {
		_ = Init(Config{Level: "INFO", Format: "text", Output: "stdout"})
	})

	var buf bytes.Buffer
	SetOutput(&buf)
	Info("dropped")
	Warn("lock contention on %s", "a.txt")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "lock contention on a.txt", entry["msg"])
}

func TestInit_RejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Init(Config{Level: "loud"}))
}
