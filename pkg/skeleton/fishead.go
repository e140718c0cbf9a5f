// Package skeleton builds the packets of an Ogg Skeleton track: the fishead
// stream header, one fisbone per content stream and the keyframe index.
package skeleton

import (
	"bytes"
	"errors"
	"fmt"
)

// Identifiers.
var (
	FisheadIdentifier = []byte("fishead\x00")
	FisboneIdentifier = []byte("fisbone\x00")
	IndexIdentifier   = []byte("index\x00")
)

// Fishead sizes.
const (
	FisheadSizeV3 = 64
	FisheadSizeV4 = 80
)

// Unknown is written in fields whose value is not yet known.
const Unknown = -1

// Fishead is the first packet of the skeleton track.
type Fishead struct {
	VersionMajor uint16
	VersionMinor uint16

	PresentationNum int64
	PresentationDen int64
	BaseNum         int64
	BaseDen         int64

	// Version 4 only.
	SegmentLength int64
	ContentOffset int64
}

// NewFishead returns a fishead of the given major version with
// millisecond presentation and base times of zero.
func NewFishead(versionMajor uint16) Fishead {
	return Fishead{
		VersionMajor:    versionMajor,
		PresentationNum: 0,
		PresentationDen: 1000,
		BaseNum:         0,
		BaseDen:         1000,
		SegmentLength:   Unknown,
		ContentOffset:   Unknown,
	}
}

// Size marshaled size.
func (h Fishead) Size() int {
	if h.VersionMajor >= 4 {
		return FisheadSizeV4
	}
	return FisheadSizeV3
}

// Marshal fishead.
func (h Fishead) Marshal() []byte {
	out := make([]byte, h.Size())
	pos := 0

	write(out, &pos, FisheadIdentifier)
	writeUint16(out, &pos, h.VersionMajor)
	writeUint16(out, &pos, h.VersionMinor)
	writeInt64(out, &pos, h.PresentationNum)
	writeInt64(out, &pos, h.PresentationDen)
	writeInt64(out, &pos, h.BaseNum)
	writeInt64(out, &pos, h.BaseDen)

	// UTC, left zero.
	pos += 20

	if h.VersionMajor >= 4 {
		writeInt64(out, &pos, h.SegmentLength)
		writeInt64(out, &pos, h.ContentOffset)
	}
	return out
}

// Errors.
var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrPacketTooShort    = errors.New("packet too short")
)

// UnmarshalFishead parses a marshaled fishead.
func UnmarshalFishead(p []byte) (*Fishead, error) {
	if len(p) < FisheadSizeV3 {
		return nil, fmt.Errorf("fishead: %w: %d", ErrPacketTooShort, len(p))
	}
	if !bytes.Equal(p[:8], FisheadIdentifier) {
		return nil, fmt.Errorf("fishead: %w", ErrInvalidIdentifier)
	}

	h := &Fishead{
		VersionMajor: uint16(p[8]) | uint16(p[9])<<8,
		VersionMinor: uint16(p[10]) | uint16(p[11])<<8,
	}
	pos := 12
	h.PresentationNum = readInt64(p, &pos)
	h.PresentationDen = readInt64(p, &pos)
	h.BaseNum = readInt64(p, &pos)
	h.BaseDen = readInt64(p, &pos)

	if h.VersionMajor < 4 {
		h.SegmentLength = Unknown
		h.ContentOffset = Unknown
		return h, nil
	}
	if len(p) < FisheadSizeV4 {
		return nil, fmt.Errorf("fishead v4: %w: %d", ErrPacketTooShort, len(p))
	}
	pos = 64
	h.SegmentLength = readInt64(p, &pos)
	h.ContentOffset = readInt64(p, &pos)
	return h, nil
}
