package ogg

import (
	"encoding/binary"
)

// Page size thresholds.
const (
	// A page is emitted once its body exceeds this size and
	// at least MinPagePackets packets were completed on it.
	PageFillSize   = 4096
	MinPagePackets = 4
	MaxSegments    = 255
)

// Packet is a packet submitted to a stream.
type Packet struct {
	Data    []byte
	Granule int64
	EOS     bool
}

type segment struct {
	value   byte
	start   bool // First segment of a packet.
	granule int64
}

// Stream buffers the packets of a logical bitstream and cuts them into pages.
type Stream struct {
	serial uint32

	body     []byte
	segments []segment

	pageNo  uint32
	packets int64

	bosDone bool
	eos     bool // Last packet was submitted.
}

// NewStream returns an empty stream.
func NewStream(serial uint32) *Stream {
	return &Stream{serial: serial}
}

// Serial returns the serial number of the stream.
func (s *Stream) Serial() uint32 {
	return s.serial
}

// PacketsIn returns the number of packets submitted.
func (s *Stream) PacketsIn() int64 {
	return s.packets
}

// Pending returns the number of buffered segments.
func (s *Stream) Pending() int {
	return len(s.segments)
}

// EOS reports whether the last packet was submitted and all pages returned.
func (s *Stream) EOS() bool {
	return s.eos && len(s.segments) == 0
}

// PacketIn submits a packet. Packets submitted after the
// end of stream are ignored.
func (s *Stream) PacketIn(p Packet) {
	if s.eos {
		return
	}

	s.body = append(s.body, p.Data...)

	n := len(p.Data)/255 + 1
	for i := 0; i < n; i++ {
		v := byte(255)
		if i == n-1 {
			v = byte(len(p.Data) % 255)
		}
		s.segments = append(s.segments, segment{
			value:   v,
			start:   i == 0,
			granule: p.Granule,
		})
	}

	s.packets++
	if p.EOS {
		s.eos = true
	}
}

// PageOut returns a page if enough data is buffered to fill one. The first
// page and the final page are always returned as soon as possible.
func (s *Stream) PageOut() (Page, bool) {
	force := len(s.segments) != 0 && (s.eos || !s.bosDone)
	return s.page(force)
}

// Flush returns a page containing all buffered data that fits in one page,
// regardless of how full it is.
func (s *Stream) Flush() (Page, bool) {
	return s.page(true)
}

// Reset discards all buffered data and restarts page numbering.
func (s *Stream) Reset() {
	*s = Stream{serial: s.serial}
}

func (s *Stream) page(force bool) (Page, bool) {
	maxVals := len(s.segments)
	if maxVals > MaxSegments {
		maxVals = MaxSegments
	}
	if maxVals == 0 {
		return Page{}, false
	}

	granule := int64(-1)
	vals := 0
	if !s.bosDone {
		// The first page holds only the first packet.
		granule = 0
		for vals < maxVals {
			vals++
			if s.segments[vals-1].value < 255 {
				break
			}
		}
	} else {
		acc := 0
		packetsDone := 0
		packetJustDone := 0
		for ; vals < maxVals; vals++ {
			if acc > PageFillSize && packetJustDone >= MinPagePackets {
				force = true
				break
			}
			acc += int(s.segments[vals].value)
			if s.segments[vals].value < 255 {
				granule = s.segments[vals].granule
				packetsDone++
				packetJustDone = packetsDone
			} else {
				packetJustDone = 0
			}
		}
		if vals == MaxSegments {
			force = true
		}
	}
	if !force {
		return Page{}, false
	}

	var flags byte
	if !s.segments[0].start {
		flags |= FlagContinued
	}
	if !s.bosDone {
		flags |= FlagBOS
		s.bosDone = true
	}
	if s.eos && vals == len(s.segments) {
		flags |= FlagEOS
	}

	header := make([]byte, HeaderSize+vals)
	copy(header, CapturePattern)
	header[4] = 0
	header[5] = flags
	binary.LittleEndian.PutUint64(header[6:], uint64(granule))
	binary.LittleEndian.PutUint32(header[14:], s.serial)
	binary.LittleEndian.PutUint32(header[18:], s.pageNo)
	header[26] = byte(vals)

	bodyLen := 0
	for i := 0; i < vals; i++ {
		header[HeaderSize+i] = s.segments[i].value
		bodyLen += int(s.segments[i].value)
	}
	s.pageNo++

	body := make([]byte, bodyLen)
	copy(body, s.body)

	page := Page{Header: header, Body: body}
	binary.LittleEndian.PutUint32(header[22:], page.checksum())

	s.body = s.body[:copy(s.body, s.body[bodyLen:])]
	s.segments = s.segments[:copy(s.segments, s.segments[vals:])]

	return page, true
}
