package packetdump

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Header meta file header.
type Header struct {
	Streams  []Stream
	Duration int64 // Milliseconds, -1 if unknown.
}

// Stream holds the header packets of a stream.
type Stream struct {
	Headers [][]byte
}

// Errors.
var (
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrTooManyStreams     = errors.New("too many streams")
	ErrTooManyHeaders     = errors.New("too many header packets")
)

// Size marshaled size.
func (h Header) Size() int {
	n := 1 + 1 + 8
	for _, s := range h.Streams {
		n++
		for _, p := range s.Headers {
			n += 4 + len(p)
		}
	}
	return n
}

// Marshal header.
func (h Header) Marshal() ([]byte, error) {
	if len(h.Streams) > 255 {
		return nil, fmt.Errorf("%w: %d", ErrTooManyStreams, len(h.Streams))
	}

	out := make([]byte, h.Size())
	pos := 0

	const version = 0
	out[pos] = version
	pos++

	out[pos] = uint8(len(h.Streams))
	pos++

	for i, s := range h.Streams {
		if len(s.Headers) > 255 {
			return nil, fmt.Errorf("stream %d: %w: %d", i, ErrTooManyHeaders, len(s.Headers))
		}
		out[pos] = uint8(len(s.Headers))
		pos++

		for _, p := range s.Headers {
			marshalArray(out, &pos, p)
		}
	}

	// Duration.
	binary.BigEndian.PutUint64(out[pos:pos+8], uint64(h.Duration))

	return out, nil
}

func marshalArray(out []byte, pos *int, value []byte) {
	size := len(value)
	binary.BigEndian.PutUint32(out[*pos:*pos+4], uint32(size))
	*pos += 4

	copy(out[*pos:*pos+size], value)
	*pos += size
}

// Unmarshal header from reader.
func (h *Header) Unmarshal(r io.Reader) (int, error) {
	read := 0

	buf := make([]byte, 2)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		return 0, err
	}
	read += n
	if buf[0] != 0 {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, buf[0])
	}

	h.Streams = make([]Stream, buf[1])
	for i := range h.Streams {
		count := make([]byte, 1)
		n, err := io.ReadFull(r, count)
		if err != nil {
			return 0, fmt.Errorf("stream %d: %w", i, err)
		}
		read += n

		h.Streams[i].Headers = make([][]byte, count[0])
		for j := range h.Streams[i].Headers {
			n, err := unmarshalArray(r, &h.Streams[i].Headers[j])
			if err != nil {
				return 0, fmt.Errorf("stream %d header %d: %w", i, j, err)
			}
			read += n
		}
	}

	// Duration.
	duration := make([]byte, 8)
	n, err = io.ReadFull(r, duration)
	if err != nil {
		return 0, err
	}
	h.Duration = int64(binary.BigEndian.Uint64(duration))
	read += n

	return read, nil
}

func unmarshalArray(r io.Reader, value *[]byte) (int, error) {
	read := 0

	sizeBuf := make([]byte, 4)
	n, err := io.ReadFull(r, sizeBuf)
	if err != nil {
		return 0, err
	}
	read += n

	size := binary.BigEndian.Uint32(sizeBuf)
	*value = make([]byte, size)
	n, err = io.ReadFull(r, *value)
	if err != nil {
		return 0, err
	}
	read += n

	return read, nil
}
