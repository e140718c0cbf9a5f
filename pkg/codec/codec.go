// Package codec describes the elementary streams handed to the muxer
// and maps their granule positions to presentation time.
package codec

import (
	"errors"
	"fmt"
	"time"
)

// Kind of elementary stream.
type Kind int

// Stream kinds.
const (
	KindVideo Kind = iota
	KindAudio
	KindSubtitle
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindSubtitle:
		return "subtitle"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Packet is an encoded packet of an elementary stream.
type Packet struct {
	Data     []byte
	Granule  int64
	Keyframe bool
	EOS      bool

	// Number of samples for audio, display time
	// in milliseconds for subtitles.
	Duration int64
}

// Info is the identification header of a stream.
type Info struct {
	Kind       Kind
	Codec      string
	NumHeaders int

	// Video.
	VersionMajor    uint8
	VersionMinor    uint8
	VersionRevision uint8
	Width           uint32
	Height          uint32
	FPSNum          uint32
	FPSDen          uint32
	KeyframeShift   uint8

	// Audio.
	Channels   uint8
	SampleRate uint32

	// Subtitles.
	GranuleNum   uint32
	GranuleDen   uint32
	GranuleShift uint8
	Language     string
	Category     string
}

// Errors.
var (
	ErrUnknownCodec  = errors.New("unknown codec")
	ErrInvalidHeader = errors.New("invalid identification header")
)

// Probe parses the identification header of any supported codec.
func Probe(header []byte) (*Info, error) {
	switch {
	case hasMagic(header, theoraMagic):
		return ParseTheora(header)
	case hasMagic(header, vorbisMagic):
		return ParseVorbis(header)
	case hasMagic(header, kateMagic):
		return ParseKate(header)
	}
	return nil, ErrUnknownCodec
}

func hasMagic(p []byte, magic string) bool {
	return len(p) >= len(magic) && string(p[:len(magic)]) == magic
}

// GranuleRate returns the number of granules per second as a fraction.
func (i Info) GranuleRate() (int64, int64) {
	switch i.Kind {
	case KindVideo:
		return int64(i.FPSNum), int64(i.FPSDen)
	case KindAudio:
		return int64(i.SampleRate), 1
	}
	return int64(i.GranuleNum), int64(i.GranuleDen)
}

// Shift returns the granule shift.
func (i Info) Shift() uint8 {
	switch i.Kind {
	case KindVideo:
		return i.KeyframeShift
	case KindSubtitle:
		return i.GranuleShift
	}
	return 0
}

// Preroll returns the number of packets that must be decoded
// before the first sample of a page can be presented.
func (i Info) Preroll() uint32 {
	if i.Kind == KindAudio {
		return 2
	}
	return 0
}

// GranuleFrame returns the frame index of a video granule position.
func (i Info) GranuleFrame(granule int64) int64 {
	if granule < 0 {
		return -1
	}
	frame := (granule >> i.KeyframeShift) + (granule & (1<<i.KeyframeShift - 1))
	if i.frameOffset() {
		frame--
	}
	return frame
}

// Bitstreams from version 3.2.1 count frames from 1.
func (i Info) frameOffset() bool {
	return i.VersionMajor > 3 ||
		(i.VersionMajor == 3 && i.VersionMinor > 2) ||
		(i.VersionMajor == 3 && i.VersionMinor == 2 && i.VersionRevision >= 1)
}

// FrameTime returns the presentation time of a video frame in milliseconds.
func (i Info) FrameTime(frame int64) int64 {
	if i.FPSNum == 0 {
		return 0
	}
	return 1000 * int64(i.FPSDen) * frame / int64(i.FPSNum)
}

// SampleTime returns the time of an audio granule position in milliseconds.
func (i Info) SampleTime(granule int64) int64 {
	if i.SampleRate == 0 {
		return 0
	}
	return 1000 * granule / int64(i.SampleRate)
}

// GranuleTime returns the time of a subtitle granule position in milliseconds.
func (i Info) GranuleTime(granule int64) int64 {
	if granule < 0 || i.GranuleNum == 0 {
		return -1
	}
	base := granule >> i.GranuleShift
	offset := granule & (1<<i.GranuleShift - 1)
	return 1000 * (base + offset) * int64(i.GranuleDen) / int64(i.GranuleNum)
}

// PageTime returns the time at which the last packet
// completed on a page with the given granule ends.
func (i Info) PageTime(granule int64) time.Duration {
	var seconds float64
	switch i.Kind {
	case KindVideo:
		if i.FPSNum == 0 {
			return 0
		}
		frame := i.GranuleFrame(granule) + 1
		seconds = float64(frame) * float64(i.FPSDen) / float64(i.FPSNum)
	case KindAudio:
		if i.SampleRate == 0 {
			return 0
		}
		seconds = float64(granule) / float64(i.SampleRate)
	case KindSubtitle:
		if i.GranuleNum == 0 {
			return 0
		}
		base := granule >> i.GranuleShift
		offset := granule & (1<<i.GranuleShift - 1)
		seconds = float64(base+offset) * float64(i.GranuleDen) / float64(i.GranuleNum)
	}
	return time.Duration(seconds * float64(time.Second))
}
