// Package ogg frames packets of a logical bitstream into Ogg pages.
package ogg

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Header flags.
const (
	FlagContinued = 0x01
	FlagBOS       = 0x02
	FlagEOS       = 0x04
)

// HeaderSize is the size of the page header without the segment table.
const HeaderSize = 27

// CapturePattern starts every page.
var CapturePattern = []byte("OggS")

// Page is a complete page, header and body.
type Page struct {
	Header []byte
	Body   []byte
}

// Len returns the size of the page in bytes.
func (p Page) Len() int {
	return len(p.Header) + len(p.Body)
}

// Bytes returns the page as a single slice.
func (p Page) Bytes() []byte {
	out := make([]byte, 0, p.Len())
	out = append(out, p.Header...)
	return append(out, p.Body...)
}

// Flags returns the header type flags.
func (p Page) Flags() byte {
	return p.Header[5]
}

// Continued reports whether the page starts with a continued packet.
func (p Page) Continued() bool {
	return p.Flags()&FlagContinued != 0
}

// BOS reports whether the page is the first page of the stream.
func (p Page) BOS() bool {
	return p.Flags()&FlagBOS != 0
}

// EOS reports whether the page is the last page of the stream.
func (p Page) EOS() bool {
	return p.Flags()&FlagEOS != 0
}

// Granule returns the granule position of the last packet completed on
// the page, -1 if no packet completes.
func (p Page) Granule() int64 {
	return int64(binary.LittleEndian.Uint64(p.Header[6:14]))
}

// Serial returns the serial number of the logical stream.
func (p Page) Serial() uint32 {
	return binary.LittleEndian.Uint32(p.Header[14:18])
}

// Sequence returns the page sequence number.
func (p Page) Sequence() uint32 {
	return binary.LittleEndian.Uint32(p.Header[18:22])
}

// Checksum returns the CRC stored in the header.
func (p Page) Checksum() uint32 {
	return binary.LittleEndian.Uint32(p.Header[22:26])
}

func (p Page) segments() []byte {
	return p.Header[HeaderSize : HeaderSize+int(p.Header[26])]
}

// Packets returns the number of packets completed on the page.
func (p Page) Packets() int {
	n := 0
	for _, v := range p.segments() {
		if v < 255 {
			n++
		}
	}
	return n
}

// StartPackets returns the number of packets beginning on the page.
func (p Page) StartPackets() int {
	segments := p.segments()
	n := 0
	if !p.Continued() {
		n++
	}
	for i := 1; i < len(segments); i++ {
		if segments[i-1] < 255 {
			n++
		}
	}
	return n
}

func (p Page) checksum() uint32 {
	crc := crcUpdate(0, p.Header[:22])
	crc = crcUpdate(crc, []byte{0, 0, 0, 0})
	crc = crcUpdate(crc, p.Header[26:])
	return crcUpdate(crc, p.Body)
}

// Errors.
var (
	ErrInvalidPage = errors.New("invalid page")
	ErrBadChecksum = errors.New("checksum mismatch")
	ErrShortPage   = errors.New("page truncated")
	ErrBadVersion  = errors.New("unsupported stream structure version")
)

// ParsePage parses the page at the start of buf and returns it with
// the number of bytes it occupies.
func ParsePage(buf []byte) (Page, int, error) {
	if len(buf) < HeaderSize {
		return Page{}, 0, fmt.Errorf("%w: %d bytes", ErrShortPage, len(buf))
	}
	if string(buf[:4]) != string(CapturePattern) {
		return Page{}, 0, fmt.Errorf("%w: capture pattern %q", ErrInvalidPage, buf[:4])
	}
	if buf[4] != 0 {
		return Page{}, 0, fmt.Errorf("%w: %d", ErrBadVersion, buf[4])
	}

	headerLen := HeaderSize + int(buf[26])
	if len(buf) < headerLen {
		return Page{}, 0, fmt.Errorf("%w: segment table", ErrShortPage)
	}

	bodyLen := 0
	for _, v := range buf[HeaderSize:headerLen] {
		bodyLen += int(v)
	}
	if len(buf) < headerLen+bodyLen {
		return Page{}, 0, fmt.Errorf("%w: body", ErrShortPage)
	}

	page := Page{
		Header: buf[:headerLen],
		Body:   buf[headerLen : headerLen+bodyLen],
	}
	if page.checksum() != page.Checksum() {
		return Page{}, 0, fmt.Errorf("%w: page %d", ErrBadChecksum, page.Sequence())
	}
	return page, headerLen + bodyLen, nil
}
