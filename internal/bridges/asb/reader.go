package asb

import (
	"bytes"
	"context"
	"errors"
	"io"
)

// Reader limits.
const (
	// DefaultMaxPending caps the unterminated fragment a LineReader keeps.
	DefaultMaxPending = 64 * 1024

	// readChunkSize is the buffer size used by ReadLines.
	readChunkSize = 256
)

// LineReader reassembles newline-terminated lines from arbitrary chunks.
//
// Lines are returned in arrival order, each exactly once, without the
// newline. A LineReader is not safe for concurrent use; one goroutine
// owns the serial read side.
type LineReader struct {
	buf        []byte
	maxPending int
	discarded  uint64
}

// NewLineReader creates a LineReader. maxPending <= 0 uses DefaultMaxPending.
func NewLineReader(maxPending int) *LineReader {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &LineReader{maxPending: maxPending}
}

// Feed appends chunk and returns every line it completes.
//
// The returned slices are copies and stay valid after the next Feed.
func (r *LineReader) Feed(chunk []byte) [][]byte {
	r.buf = append(r.buf, chunk...)

	var lines [][]byte
	for {
		i := bytes.IndexByte(r.buf, '\n')
		if i < 0 {
			break
		}
		line := make([]byte, i)
		copy(line, r.buf[:i])
		lines = append(lines, line)
		r.buf = r.buf[i+1:]
	}

	if len(r.buf) > r.maxPending {
		r.buf = nil
		r.discarded++
	}
	// Release the consumed prefix once the buffer drains.
	if len(r.buf) == 0 {
		r.buf = nil
	}

	return lines
}

// Pending returns the length of the unterminated fragment.
func (r *LineReader) Pending() int {
	return len(r.buf)
}

// Discarded returns how many over-long fragments were dropped.
func (r *LineReader) Discarded() uint64 {
	return r.discarded
}

// Reset drops any buffered fragment.
func (r *LineReader) Reset() {
	r.buf = nil
}

// ReadLines reads src until EOF, error or cancellation and calls fn for
// every complete line, with surrounding whitespace trimmed and empty
// lines skipped. It returns nil on EOF.
func ReadLines(ctx context.Context, src io.Reader, lr *LineReader, fn func(line []byte)) error {
	chunk := make([]byte, readChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := src.Read(chunk)
		if n > 0 {
			for _, line := range lr.Feed(chunk[:n]) {
				if line = bytes.TrimSpace(line); len(line) > 0 {
					fn(line)
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
