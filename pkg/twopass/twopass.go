// Package twopass stores the rate control data of a first encoding pass
// and feeds it back to the encoder during the second pass.
package twopass

import (
	"errors"
	"fmt"
	"io"
)

// StagingSize is the size of the buffer data is fed through in the second pass.
const StagingSize = 80

// Encoder is the rate controller of a video encoder.
type Encoder interface {
	// PassOut returns the first pass data produced since the last call.
	// Before the first frame and after the last one it returns the summary.
	PassOut() ([]byte, error)

	// PassIn submits second pass data and returns the number of bytes
	// consumed. When p is nil it returns the number of bytes wanted.
	PassIn(p []byte) (int, error)
}

// Errors.
var (
	ErrWrongPass    = errors.New("wrong pass")
	ErrSummarySize  = errors.New("summary size changed")
	ErrUnexpectedIn = errors.New("encoder consumed more than it was given")
	ErrStalled      = errors.New("encoder stopped consuming pass data")
)

// File is the scratch file shared by both passes.
type File struct {
	rws  io.ReadWriteSeeker
	pass int

	summarySize int

	staging [StagingSize]byte
	staged  int
}

// New returns a scratch file backed by rws.
func New(rws io.ReadWriteSeeker) *File {
	return &File{rws: rws}
}

// Pass returns the current pass, zero before the first one begins.
func (f *File) Pass() int {
	return f.pass
}

// BeginFirstPass writes the placeholder summary at the start of the file.
// Seeking here ensures the summary can be overwritten at the end.
func (f *File) BeginFirstPass(enc Encoder) error {
	if f.pass != 0 {
		return fmt.Errorf("%w: %d", ErrWrongPass, f.pass)
	}
	f.pass = 1

	summary, err := enc.PassOut()
	if err != nil {
		return fmt.Errorf("placeholder summary: %w", err)
	}
	if _, err := f.rws.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek test: %w", err)
	}
	if _, err := f.rws.Write(summary); err != nil {
		return fmt.Errorf("write placeholder summary: %w", err)
	}
	f.summarySize = len(summary)
	return nil
}

// FrameOut appends the data of the last encoded frame.
func (f *File) FrameOut(enc Encoder) error {
	if f.pass != 1 {
		return fmt.Errorf("%w: %d", ErrWrongPass, f.pass)
	}
	data, err := enc.PassOut()
	if err != nil {
		return fmt.Errorf("frame data: %w", err)
	}
	if _, err := f.rws.Write(data); err != nil {
		return fmt.Errorf("write frame data: %w", err)
	}
	return nil
}

// EndFirstPass overwrites the placeholder with the final summary.
func (f *File) EndFirstPass(enc Encoder) error {
	if f.pass != 1 {
		return fmt.Errorf("%w: %d", ErrWrongPass, f.pass)
	}
	summary, err := enc.PassOut()
	if err != nil {
		return fmt.Errorf("summary: %w", err)
	}
	if len(summary) != f.summarySize {
		return fmt.Errorf("%w: %d/%d", ErrSummarySize, len(summary), f.summarySize)
	}
	if _, err := f.rws.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek to summary: %w", err)
	}
	if _, err := f.rws.Write(summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// BeginSecondPass rewinds the file.
func (f *File) BeginSecondPass() error {
	if f.pass != 1 {
		return fmt.Errorf("%w: %d", ErrWrongPass, f.pass)
	}
	f.pass = 2
	f.staged = 0
	if _, err := f.rws.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind: %w", err)
	}
	return nil
}

// FrameIn feeds the encoder until it has the data for the next frame.
func (f *File) FrameIn(enc Encoder) error {
	if f.pass != 2 {
		return fmt.Errorf("%w: %d", ErrWrongPass, f.pass)
	}
	for {
		wanted, err := enc.PassIn(nil)
		if err != nil {
			return fmt.Errorf("query encoder: %w", err)
		}
		if wanted == 0 {
			return nil
		}

		// Bytes already staged count towards the wanted amount.
		n := wanted - f.staged
		if n < 0 {
			n = 0
		}
		if n > StagingSize-f.staged {
			n = StagingSize - f.staged
		}
		if n > 0 {
			if _, err := io.ReadFull(f.rws, f.staging[f.staged:f.staged+n]); err != nil {
				return fmt.Errorf("read pass data: %w", err)
			}
		}
		available := f.staged + n

		used, err := enc.PassIn(f.staging[:available])
		if err != nil {
			return fmt.Errorf("submit pass data: %w", err)
		}
		if used > available {
			return fmt.Errorf("%w: %d/%d", ErrUnexpectedIn, used, available)
		}
		if used == 0 && n == 0 {
			return fmt.Errorf("%w: %d bytes staged", ErrStalled, available)
		}
		f.staged = copy(f.staging[:], f.staging[used:available])
	}
}
