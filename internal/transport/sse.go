package transport

import (
	"bufio"
	"bytes"
	"io"
	"sync"
)

const (
	// maxSSELineSize caps a single SSE line at 1MiB. Upstreams that emit
	// larger lines are malformed; the reader fails rather than buffer
	// unboundedly.
	maxSSELineSize = 1024 * 1024

	initialSSEBufSize = 4096
)

var sseBufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, initialSSEBufSize)
		return &buf
	},
}

// SSEReader yields the data payload of each server-sent event from a
// response body. Blank keep-alive lines, comments and event-name lines
// are consumed here so adapters only ever see data payloads; the
// `[DONE]` sentinel terminates the stream.
type SSEReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	buf     *[]byte
	done    bool
	sawDone bool
}

// NewSSEReader wraps a streaming response body.
func NewSSEReader(body io.ReadCloser) *SSEReader {
	buf, _ := sseBufPool.Get().(*[]byte)
	scanner := bufio.NewScanner(body)
	scanner.Buffer(*buf, maxSSELineSize)
	return &SSEReader{
		body:    body,
		scanner: scanner,
		buf:     buf,
	}
}

var (
	dataPrefix  = []byte("data:")
	eventPrefix = []byte("event:")
	doneMarker  = []byte("[DONE]")
)

// Next returns the next non-empty data payload. It returns io.EOF at
// stream end or on the [DONE] sentinel. The returned slice is only valid
// until the next call.
func (r *SSEReader) Next() ([]byte, error) {
	if r.done {
		return nil, io.EOF
	}

	for r.scanner.Scan() {
		line := bytes.TrimRight(r.scanner.Bytes(), "\r")

		// Blank separator lines and comment lines carry no payload.
		if len(bytes.TrimSpace(line)) == 0 || line[0] == ':' {
			continue
		}
		// Event-name lines are consumed; the payload arrives on the
		// following data line.
		if bytes.HasPrefix(line, eventPrefix) {
			continue
		}
		if bytes.HasPrefix(line, dataPrefix) {
			line = bytes.TrimSpace(line[len(dataPrefix):])
		}
		if len(line) == 0 {
			continue
		}
		if bytes.Equal(line, doneMarker) {
			r.done = true
			r.sawDone = true
			return nil, io.EOF
		}
		return line, nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	r.done = true
	return nil, io.EOF
}

// Terminated reports whether the stream ended with the [DONE] sentinel.
// An io.EOF from Next without termination means the upstream connection
// was cut mid-stream.
func (r *SSEReader) Terminated() bool {
	return r.sawDone
}

// Close releases the body and returns the scanner buffer to the pool.
func (r *SSEReader) Close() error {
	if r.buf != nil {
		sseBufPool.Put(r.buf)
		r.buf = nil
	}
	return r.body.Close()
}
