package sink

import (
	"bytes"
	"errors"
	"io"
)

// WriterSeeker is an in-memory io.WriteSeeker implementation.
// When Unseekable is set, every seek fails like it does on a pipe.
type WriterSeeker struct {
	Unseekable bool

	buf bytes.Buffer
	pos int
}

// Write writes to the buffer at the current position.
func (ws *WriterSeeker) Write(p []byte) (n int, err error) {
	// Grow the buffer with null bytes if the position is past the end.
	if extra := ws.pos - ws.buf.Len(); extra > 0 {
		if _, err := ws.buf.Write(make([]byte, extra)); err != nil {
			return n, err
		}
	}

	// Overwrite existing data first.
	if ws.pos < ws.buf.Len() {
		n = copy(ws.buf.Bytes()[ws.pos:], p)
		p = p[n:]
	}

	if len(p) > 0 {
		var bn int
		bn, err = ws.buf.Write(p)
		n += bn
	}

	ws.pos += n
	return n, err
}

// Errors.
var (
	ErrNegativeResultPos = errors.New("negative result pos")
	ErrIllegalSeek       = errors.New("illegal seek")
)

// Seek sets the position of the next write.
func (ws *WriterSeeker) Seek(offset int64, whence int) (int64, error) {
	if ws.Unseekable {
		return 0, ErrIllegalSeek
	}

	newPos, offs := 0, int(offset)
	switch whence {
	case io.SeekStart:
		newPos = offs
	case io.SeekCurrent:
		newPos = ws.pos + offs
	case io.SeekEnd:
		newPos = ws.buf.Len() + offs
	}
	if newPos < 0 {
		return 0, ErrNegativeResultPos
	}
	ws.pos = newPos
	return int64(newPos), nil
}

// Bytes returns the underlying byte slice.
func (ws *WriterSeeker) Bytes() []byte {
	return ws.buf.Bytes()
}

// Len returns the number of bytes written.
func (ws *WriterSeeker) Len() int {
	return ws.buf.Len()
}
