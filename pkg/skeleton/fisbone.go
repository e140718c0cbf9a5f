package skeleton

import (
	"errors"
	"fmt"
	"strings"
)

// FisboneSize is the size of the fixed part of a fisbone packet.
const FisboneSize = 52

// Offset of the message header fields, relative to byte 8.
const messageHeaderOffset = FisboneSize - 8

// MaxMessageHeadersSize is the capacity of a MessageHeaders buffer.
const MaxMessageHeadersSize = 512

// ErrMessageHeadersTooLong the message headers exceed their buffer.
var ErrMessageHeadersTooLong = errors.New("message headers too long")

// ErrInvalidHeaderField header name or value contains a line break.
var ErrInvalidHeaderField = errors.New("invalid message header field")

// MessageHeaders is a bounded buffer of "Name: value\r\n" lines.
type MessageHeaders struct {
	buf []byte
}

// Add appends a header line. The buffer is left untouched on error.
func (m *MessageHeaders) Add(name, value string) error {
	if name == "" || strings.ContainsAny(name, ":\r\n") || strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidHeaderField, name)
	}

	n := len(name) + len(": ") + len(value) + len("\r\n")
	if len(m.buf)+n > MaxMessageHeadersSize {
		return fmt.Errorf("%w: adding %q", ErrMessageHeadersTooLong, name)
	}
	m.buf = append(m.buf, name...)
	m.buf = append(m.buf, ": "...)
	m.buf = append(m.buf, value...)
	m.buf = append(m.buf, "\r\n"...)
	return nil
}

// Len returns the number of bytes used.
func (m *MessageHeaders) Len() int {
	return len(m.buf)
}

// Bytes returns the header lines.
func (m *MessageHeaders) Bytes() []byte {
	return m.buf
}

// Fisbone describes one content stream of the segment.
type Fisbone struct {
	Serial       uint32
	NumHeaders   uint32
	GranuleNum   int64
	GranuleDen   int64
	StartGranule int64
	Preroll      uint32
	GranuleShift uint8
	Headers      MessageHeaders
}

// Size marshaled size.
func (b *Fisbone) Size() int {
	return FisboneSize + b.Headers.Len()
}

// Marshal fisbone.
func (b *Fisbone) Marshal() []byte {
	out := make([]byte, b.Size())
	pos := 0

	write(out, &pos, FisboneIdentifier)
	writeUint32(out, &pos, messageHeaderOffset)
	writeUint32(out, &pos, b.Serial)
	writeUint32(out, &pos, b.NumHeaders)
	writeInt64(out, &pos, b.GranuleNum)
	writeInt64(out, &pos, b.GranuleDen)
	writeInt64(out, &pos, b.StartGranule)
	writeUint32(out, &pos, b.Preroll)
	writeByte(out, &pos, b.GranuleShift)

	// Padding.
	pos += 3

	write(out, &pos, b.Headers.Bytes())
	return out
}
