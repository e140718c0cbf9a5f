// Package sink tracks the write position of the muxer output and
// provides random access writes when the output allows it.
package sink

import (
	"errors"
	"fmt"
	"io"
)

// Seekability of the output, determined by the first write.
type Seekability int

// Seekabilities.
const (
	SeekUnknown Seekability = iota
	Seekable
	NotSeekable
)

func (s Seekability) String() string {
	switch s {
	case SeekUnknown:
		return "unknown"
	case Seekable:
		return "seekable"
	case NotSeekable:
		return "not seekable"
	}
	return fmt.Sprintf("Seekability(%d)", int(s))
}

// Errors.
var (
	ErrNotSeekable = errors.New("output is not seekable")
	ErrShortWrite  = errors.New("short write")
)

// Sink is the output of the muxer.
type Sink struct {
	w      io.Writer
	seeker io.Seeker

	offset      int64
	seekability Seekability
}

// New returns a sink writing to w. The output is seekable
// only if w implements io.Seeker and seeking succeeds.
func New(w io.Writer) *Sink {
	s := &Sink{w: w}
	if seeker, ok := w.(io.Seeker); ok {
		s.seeker = seeker
	}
	return s
}

// Write writes p at the current offset. The first
// write determines whether the output is seekable.
func (s *Sink) Write(p []byte) (int, error) {
	if err := s.write(p); err != nil {
		return 0, err
	}
	if s.seekability == SeekUnknown {
		if err := s.probe(); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

func (s *Sink) write(p []byte) error {
	n, err := s.w.Write(p)
	s.offset += int64(n)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if n != len(p) {
		return fmt.Errorf("%w: %d/%d", ErrShortWrite, n, len(p))
	}
	return nil
}

// probe tells the current position and seeks to the start and back.
func (s *Sink) probe() error {
	if s.seeker == nil {
		s.seekability = NotSeekable
		return nil
	}
	offset, err := s.seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		s.seekability = NotSeekable
		return nil
	}
	if _, err := s.seeker.Seek(0, io.SeekStart); err != nil {
		s.seekability = NotSeekable
		return nil
	}

	s.seekability = Seekable
	if _, err := s.seeker.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek back to %d: %w", offset, err)
	}
	s.offset = offset
	return nil
}

// Offset returns the current write position.
func (s *Sink) Offset() int64 {
	return s.offset
}

// Seekability returns the seekability determined by the first write.
func (s *Sink) Seekability() Seekability {
	return s.seekability
}

func (s *Sink) seek(offset int64, whence int) (int64, error) {
	if s.seekability != Seekable {
		return 0, fmt.Errorf("%w: %v", ErrNotSeekable, s.seekability)
	}
	pos, err := s.seeker.Seek(offset, whence)
	if err != nil {
		return 0, fmt.Errorf("seek: %w", err)
	}
	return pos, nil
}

// Rewind moves the write position to the start of the output.
func (s *Sink) Rewind() error {
	if _, err := s.seek(0, io.SeekStart); err != nil {
		return err
	}
	s.offset = 0
	return nil
}

// WriteAt writes p at offset and restores the write position.
func (s *Sink) WriteAt(offset int64, p []byte) error {
	prev := s.offset
	if _, err := s.seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("write at %d: %w", offset, err)
	}
	s.offset = offset

	if err := s.write(p); err != nil {
		return fmt.Errorf("write at %d: %w", offset, err)
	}

	if _, err := s.seek(prev, io.SeekStart); err != nil {
		return fmt.Errorf("restore position %d: %w", prev, err)
	}
	s.offset = prev
	return nil
}

// Length returns the size of the output.
func (s *Sink) Length() (int64, error) {
	end, err := s.seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("length: %w", err)
	}
	if _, err := s.seek(s.offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("restore position %d: %w", s.offset, err)
	}
	return end, nil
}
