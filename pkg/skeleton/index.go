package skeleton

import (
	"bytes"
	"errors"
	"fmt"

	"oggmux/pkg/seekindex"
	"oggmux/pkg/varint"
)

// IndexHeaderSize is the size of the index packet before the keypoints.
const IndexHeaderSize = 42

// Keypoint times are in milliseconds.
const indexDenominator = 1000

// Unused reserved bytes above this are reported.
const underuseThreshold = 10000

// Placeholder bytes not covered by keypoint data.
const filler = 0xff

// Errors.
var (
	ErrSizeInvariant = errors.New("index packet size differs from placeholder")
	ErrNonMonotonic  = errors.New("keypoints are not in ascending order")
)

// EstimateKeypointCount returns the number of keypoints expected for a stream
// of the given duration, plus two for the first and last keyframe.
func EstimateKeypointCount(intervalMs int64, durationMs int64) int {
	if intervalMs <= 0 {
		return 0
	}
	if durationMs < 0 {
		durationMs = 0
	}
	return int((durationMs+intervalMs-1)/intervalMs) + 2
}

// DefaultReserve returns the number of bytes to reserve for keypoints.
func DefaultReserve(keypoints int) int {
	return int(float64(keypoints) * 5.1)
}

// Placeholder returns an empty index packet with reserved bytes of filler.
func Placeholder(serial uint32, reserved int) []byte {
	return marshalIndex(serial, 0, 0, 0, reserved)
}

func marshalIndex(serial uint32, count int, firstTime, lastTime int64, reserved int) []byte {
	out := make([]byte, IndexHeaderSize+reserved)
	pos := 0

	write(out, &pos, IndexIdentifier)
	writeUint32(out, &pos, serial)
	writeInt64(out, &pos, int64(count))
	writeInt64(out, &pos, indexDenominator)
	writeInt64(out, &pos, firstTime)
	writeInt64(out, &pos, lastTime)

	for ; pos < len(out); pos++ {
		out[pos] = filler
	}
	return out
}

// IndexReport describes how well the reserved space fit the keypoints.
type IndexReport struct {
	Serial      uint32
	Selected    int // Keypoints chosen by the selection rules.
	Written     int // Keypoints that fit the reserved space.
	BytesNeeded int // Encoded size of all selected keypoints.
	Reserved    int
}

// Dropped returns the number of selected keypoints that did not fit.
func (r IndexReport) Dropped() int {
	return r.Selected - r.Written
}

// Overflow reports whether keypoints were dropped.
func (r IndexReport) Overflow() bool {
	return r.BytesNeeded > r.Reserved
}

// Underuse reports whether a significant part of the reserve is unused.
func (r IndexReport) Underuse() bool {
	return r.Reserved-r.BytesNeeded > underuseThreshold
}

// Unused returns the number of reserved bytes left unused.
func (r IndexReport) Unused() int {
	if r.BytesNeeded > r.Reserved {
		return 0
	}
	return r.Reserved - r.BytesNeeded
}

// BuildIndex builds the final index packet of a stream. The packet has the
// same size as the placeholder. Keypoints that do not fit the reserved
// space are dropped from the end and reported.
func BuildIndex(index *seekindex.Index, serial uint32, numHeaders int) ([]byte, IndexReport, error) {
	reserved := index.Reserved()
	report := IndexReport{
		Serial:   serial,
		Reserved: reserved,
	}

	keypoints, err := index.Keypoints(numHeaders)
	if err != nil {
		return nil, report, fmt.Errorf("select keypoints: %w", err)
	}
	report.Selected = len(keypoints)

	var prev seekindex.Keypoint
	for _, k := range keypoints {
		if k.Offset < prev.Offset || k.Time < prev.Time {
			return nil, report, fmt.Errorf("%w: %+v after %+v", ErrNonMonotonic, k, prev)
		}
		report.BytesNeeded += varint.BytesRequired(k.Offset-prev.Offset)
		report.BytesNeeded += varint.BytesRequired(k.Time-prev.Time)
		if report.BytesNeeded <= reserved {
			report.Written++
		}
		prev = k
	}

	firstTime, lastTime := index.TimeRange()
	out := marshalIndex(serial, report.Written, firstTime, lastTime, reserved)

	data := out[:IndexHeaderSize]
	prev = seekindex.Keypoint{}
	for _, k := range keypoints[:report.Written] {
		data = varint.Append(data, k.Offset-prev.Offset)
		data = varint.Append(data, k.Time-prev.Time)
		prev = k
	}

	if len(out) != IndexHeaderSize+reserved || len(data) > len(out) {
		return nil, report, fmt.Errorf("%w: %d/%d", ErrSizeInvariant, len(data), len(out))
	}
	return out, report, nil
}

// IndexHeader is the fixed part of an index packet.
type IndexHeader struct {
	Serial      uint32
	Count       int64
	Denominator int64
	FirstTime   int64
	LastTime    int64
}

// UnmarshalIndex parses an index packet and decodes its keypoints.
func UnmarshalIndex(p []byte) (*IndexHeader, []seekindex.Keypoint, error) {
	if len(p) < IndexHeaderSize {
		return nil, nil, fmt.Errorf("index: %w: %d", ErrPacketTooShort, len(p))
	}
	if !bytes.Equal(p[:6], IndexIdentifier) {
		return nil, nil, fmt.Errorf("index: %w", ErrInvalidIdentifier)
	}

	h := &IndexHeader{
		Serial: uint32(p[6]) | uint32(p[7])<<8 | uint32(p[8])<<16 | uint32(p[9])<<24,
	}
	pos := 10
	h.Count = readInt64(p, &pos)
	h.Denominator = readInt64(p, &pos)
	h.FirstTime = readInt64(p, &pos)
	h.LastTime = readInt64(p, &pos)

	var keypoints []seekindex.Keypoint
	var prev seekindex.Keypoint
	data := p[IndexHeaderSize:]
	for i := int64(0); i < h.Count; i++ {
		offset, n, err := varint.Decode(data)
		if err != nil {
			return nil, nil, fmt.Errorf("keypoint %d offset: %w", i, err)
		}
		data = data[n:]

		time, n, err := varint.Decode(data)
		if err != nil {
			return nil, nil, fmt.Errorf("keypoint %d time: %w", i, err)
		}
		data = data[n:]

		prev = seekindex.Keypoint{
			Offset: prev.Offset + offset,
			Time:   prev.Time + time,
		}
		keypoints = append(keypoints, prev)
	}
	return h, keypoints, nil
}
