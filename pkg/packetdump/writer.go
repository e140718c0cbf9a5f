package packetdump

import (
	"errors"
	"fmt"
	"io"

	"oggmux/pkg/codec"
)

// ErrUnknownStream packet references a stream missing from the header.
var ErrUnknownStream = errors.New("unknown stream")

// Writer writes captures.
type Writer struct {
	meta io.Writer // Output file.
	mdat io.Writer // Output file.

	streams int
	mdatPos int
}

// NewWriter creates a new Writer and writes the header.
func NewWriter(meta io.Writer, mdat io.Writer, header Header) (*Writer, error) {
	w := &Writer{
		meta:    meta,
		mdat:    mdat,
		streams: len(header.Streams),
	}

	marshaled, err := header.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal header: %w", err)
	}
	if _, err := meta.Write(marshaled); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	return w, nil
}

// WritePacket writes a packet of the given stream.
func (w *Writer) WritePacket(stream int, packet codec.Packet) error {
	if stream < 0 || stream >= w.streams {
		return fmt.Errorf("%w: %d", ErrUnknownStream, stream)
	}

	p := Packet{
		IsKeyframe: packet.Keyframe,
		IsEOS:      packet.EOS,
		Stream:     uint8(stream),
		Granule:    packet.Granule,
		Duration:   packet.Duration,
		Offset:     uint32(w.mdatPos),
		Size:       uint32(len(packet.Data)),
	}

	n, err := w.mdat.Write(packet.Data)
	if err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	w.mdatPos += n

	if _, err := w.meta.Write(p.Marshal()); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	return nil
}
