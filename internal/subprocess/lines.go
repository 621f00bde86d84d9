package subprocess

import (
	"bufio"
	stderrors "errors"
	"io"
	"iter"
	"strings"
)

// LineFunc receives one line of process output, without its newline.
type LineFunc func(line string)

// LineReader yields newline-delimited lines from a stream.
//
// Lines longer than the cap are skipped whole and reading continues with
// the next line. The sequence returned by Lines is single-use: once it has
// been consumed (or abandoned) it yields nothing further.
type LineReader struct {
	r    *bufio.Reader
	max  int
	err  error
	used bool

	// OnOversize, if set, is called with the length of each skipped line.
	OnOversize func(size int)
}

// NewLineReader creates a reader whose lines may be up to maxLineSize bytes.
func NewLineReader(r io.Reader, maxLineSize int) *LineReader {
	return &LineReader{
		r:   bufio.NewReaderSize(r, min(64*1024, maxLineSize)),
		max: maxLineSize,
	}
}

// Lines returns the sequence of lines. A trailing carriage return is removed.
func (lr *LineReader) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		if lr.used {
			return
		}

		lr.used = true

		var (
			line []byte
			over bool
			size int
		)

		// emit finishes the current line and reports whether to keep going.
		emit := func() bool {
			defer func() {
				line, over, size = line[:0], false, 0
			}()

			text := strings.TrimSuffix(string(line), "\r")
			if over || len(text) > lr.max {
				if lr.OnOversize != nil {
					lr.OnOversize(max(size, len(text)))
				}

				return true
			}

			return yield(text)
		}

		for {
			chunk, err := lr.r.ReadSlice('\n')

			complete := err == nil
			if complete {
				chunk = chunk[:len(chunk)-1]
			}

			size += len(chunk)

			// One extra byte leaves room for a trailing '\r'.
			if !over && len(line)+len(chunk) > lr.max+1 {
				over = true
				line = line[:0]
			}

			if !over {
				line = append(line, chunk...)
			}

			switch {
			case complete:
				if !emit() {
					return
				}

			case stderrors.Is(err, bufio.ErrBufferFull):
				continue

			case stderrors.Is(err, io.EOF):
				if size > 0 {
					emit()
				}

				return

			default:
				lr.err = err

				return
			}
		}
	}
}

// Err returns the read error that ended the sequence, if any.
// A clean end of stream returns nil.
func (lr *LineReader) Err() error {
	return lr.err
}
