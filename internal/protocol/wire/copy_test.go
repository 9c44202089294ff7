package wire

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
)

type failingWriter struct{ n int }

func (w *failingWriter) Write(p []byte) (int, error) {
	w.n++
	return 0, errors.New("disk full")
}

type countingWriter struct {
	bytes.Buffer
	writes int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes++
	return w.Buffer.Write(p)
}

func TestCopyExact_DrainsAfterWriteFailure(t *testing.T) {
	src := strings.NewReader(strings.Repeat("x", 200_000) + "NEXT")
	w := &failingWriter{}

	copied, writeErr, readErr := CopyExact(w, src, 200_000)
	assert.Equal(t, int64(200_000), copied)
	assert.Error(t, writeErr)
	assert.NoError(t, readErr)
	assert.Equal(t, 1, w.n, "no writes after the first failure")

	rest, _ := io.ReadAll(src)
	assert.Equal(t, "NEXT", string(rest), "exactly the declared bytes were consumed")
}

func TestCopyExact_ShortSource(t *testing.T) {
	var dst bytes.Buffer
	copied, writeErr, readErr := CopyExact(&dst, strings.NewReader("abc"), 10)
	assert.Equal(t, int64(3), copied)
	assert.NoError(t, writeErr)
	assert.ErrorIs(t, readErr, io.ErrUnexpectedEOF)
	assert.Equal(t, "abc", dst.String())
}

func TestCopyExact_WritesEachRead(t *testing.T) {
	dst := &countingWriter{}
	copied, writeErr, readErr := CopyExact(dst, iotest.OneByteReader(strings.NewReader("slow")), 4)
	assert.Equal(t, int64(4), copied)
	assert.NoError(t, writeErr)
	assert.NoError(t, readErr)
	assert.Equal(t, "slow", dst.String())
	assert.Equal(t, 4, dst.writes, "a partial read is not held back for a full buffer")
}

func TestCopyExact_EOFWithLastBytes(t *testing.T) {
	var dst bytes.Buffer
	copied, _, readErr := CopyExact(&dst, iotest.DataErrReader(strings.NewReader("done")), 4)
	assert.Equal(t, int64(4), copied)
	assert.NoError(t, readErr)
}

func TestCopyExact_Zero(t *testing.T) {
	var dst bytes.Buffer
	copied, writeErr, readErr := CopyExact(&dst, strings.NewReader("untouched"), 0)
	assert.Zero(t, copied)
	assert.NoError(t, writeErr)
	assert.NoError(t, readErr)
}
