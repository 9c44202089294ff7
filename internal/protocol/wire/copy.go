package wire

import (
	"errors"
	"io"
	"sync"
)

const copyBufferSize = 64 * 1024

var copyBufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, copyBufferSize)
		return &buf
	},
}

// CopyExact moves exactly n payload bytes from src to dst.
//
// Whatever a single Read returns is written straight away, so a slow sender
// still advances dst (and the modification time of a file behind it) once
// per read. A failing dst does not stop the read side: the rest of the
// payload is drained so the stream stays aligned, and the first write error
// is returned as writeErr. readErr is set when src ends before n bytes.
func CopyExact(dst io.Writer, src io.Reader, n int64) (copied int64, writeErr, readErr error) {
	bufp := copyBufPool.Get().(*[]byte)
	defer copyBufPool.Put(bufp)
	buf := *bufp

	for copied < n {
		chunk := buf
		if remaining := n - copied; remaining < int64(len(chunk)) {
			chunk = chunk[:remaining]
		}

		m, err := src.Read(chunk)
		if m > 0 && writeErr == nil {
			if _, werr := dst.Write(chunk[:m]); werr != nil {
				writeErr = werr
			}
		}
		copied += int64(m)

		if err != nil {
			if copied == n && errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return copied, writeErr, err
		}
	}
	return copied, writeErr, nil
}
