package packetdump

import (
	"errors"
	"fmt"
	"io"

	"oggmux/pkg/codec"
)

// Reader reads a single meta file.
type Reader struct {
	in io.ReadSeeker

	headerSize  int
	fileSize    int
	packetCount int
}

// NewReader creates a new reader.
func NewReader(in io.ReadSeeker, fileSize int) (*Reader, *Header, error) {
	var header Header
	headerSize, err := header.Unmarshal(in)
	if err != nil {
		return nil, nil, fmt.Errorf("unmarshal header: %w", err)
	}

	r := Reader{
		in:          in,
		headerSize:  headerSize,
		fileSize:    fileSize,
		packetCount: (fileSize - headerSize) / packetSize,
	}

	return &r, &header, nil
}

// PacketCount returns the number of complete packet records.
func (r *Reader) PacketCount() int {
	return r.packetCount
}

// ReadAllPackets reads and returns all packet records in the file.
func (r *Reader) ReadAllPackets() ([]Packet, error) {
	// Seek to end of the header.
	_, err := r.in.Seek(int64(r.headerSize), io.SeekStart)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, packetSize)
	packets := make([]Packet, r.packetCount)
	for i := 0; i < r.packetCount; i++ {
		if _, err := io.ReadFull(r.in, buf); err != nil {
			return nil, err
		}
		packets[i].Unmarshal(buf)
	}

	return packets, nil
}

// ErrOutOfBounds packet record points outside the mdat file.
var ErrOutOfBounds = errors.New("packet outside of mdat")

// ReadPacket reads the data of a packet record from the mdat file.
func ReadPacket(mdat io.ReaderAt, mdatSize int64, p Packet) (codec.Packet, error) {
	end := int64(p.Offset) + int64(p.Size)
	if end > mdatSize {
		return codec.Packet{}, fmt.Errorf("%w: %d-%d, size %d", ErrOutOfBounds, p.Offset, end, mdatSize)
	}

	data := make([]byte, p.Size)
	if p.Size != 0 {
		if _, err := mdat.ReadAt(data, int64(p.Offset)); err != nil {
			return codec.Packet{}, fmt.Errorf("read packet at %d: %w", p.Offset, err)
		}
	}
	return codec.Packet{
		Data:     data,
		Granule:  p.Granule,
		Keyframe: p.IsKeyframe,
		EOS:      p.IsEOS,
		Duration: p.Duration,
	}, nil
}
