package oggmux

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	rateSummarySize = 16
	rateFrameSize   = 4
)

// ErrRateMismatch frame size differs from the first pass.
var ErrRateMismatch = errors.New("frame size differs from first pass")

// rateLog is the rate control state of the two-pass mode. Pre-encoded
// frames have fixed sizes, so the first pass records the size of every
// video frame and the second pass verifies them.
type rateLog struct {
	// First pass.
	frames  uint64
	bytes   uint64
	pending []byte

	// Second pass.
	want          int
	in            []byte
	summaryRead   bool
	summaryFrames uint64
	summaryBytes  uint64
	expected      uint32
}

// frameOut records the size of an encoded frame.
func (r *rateLog) frameOut(size int) {
	r.frames++
	r.bytes += uint64(size)
	r.pending = make([]byte, rateFrameSize)
	binary.BigEndian.PutUint32(r.pending, uint32(size))
}

// PassOut returns the size of the last frame, or the
// summary if no frame was encoded since the last call.
func (r *rateLog) PassOut() ([]byte, error) {
	if r.pending != nil {
		out := r.pending
		r.pending = nil
		return out, nil
	}
	out := make([]byte, rateSummarySize)
	binary.BigEndian.PutUint64(out[:8], r.frames)
	binary.BigEndian.PutUint64(out[8:], r.bytes)
	return out, nil
}

// nextFrame requests the data of the next frame, preceded by
// the summary before the first frame.
func (r *rateLog) nextFrame() {
	r.want = rateFrameSize
	if !r.summaryRead {
		r.want += rateSummarySize
	}
}

// PassIn consumes second pass data.
func (r *rateLog) PassIn(p []byte) (int, error) {
	if p == nil {
		return r.want, nil
	}

	used := len(p)
	if used > r.want {
		used = r.want
	}
	r.in = append(r.in, p[:used]...)
	r.want -= used

	if !r.summaryRead && len(r.in) >= rateSummarySize {
		r.summaryFrames = binary.BigEndian.Uint64(r.in[:8])
		r.summaryBytes = binary.BigEndian.Uint64(r.in[8:16])
		r.summaryRead = true
		r.in = r.in[rateSummarySize:]
	}
	if r.summaryRead && len(r.in) == rateFrameSize {
		r.expected = binary.BigEndian.Uint32(r.in)
		r.in = r.in[:0]
	}
	return used, nil
}

// check compares the size of a second pass frame with the first pass.
func (r *rateLog) check(size int) error {
	if uint32(size) != r.expected {
		return fmt.Errorf("%w: %d/%d", ErrRateMismatch, size, r.expected)
	}
	return nil
}
