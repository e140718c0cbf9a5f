package packetdump

import "encoding/binary"

// Packet flags.
const (
	FlagIsKeyframe = uint8(0x1)
	FlagIsEOS      = uint8(0x2)
)

const packetSize = 26

// Packet is a packet record.
type Packet struct {
	IsKeyframe bool
	IsEOS      bool

	Stream   uint8
	Granule  int64
	Duration int64
	Offset   uint32
	Size     uint32
}

// Marshal packet.
func (p Packet) Marshal() []byte {
	out := make([]byte, packetSize)

	var flags uint8
	if p.IsKeyframe {
		flags |= FlagIsKeyframe
	}
	if p.IsEOS {
		flags |= FlagIsEOS
	}

	out[0] = flags
	out[1] = p.Stream
	binary.BigEndian.PutUint64(out[2:10], uint64(p.Granule))
	binary.BigEndian.PutUint64(out[10:18], uint64(p.Duration))
	binary.BigEndian.PutUint32(out[18:22], p.Offset)
	binary.BigEndian.PutUint32(out[22:26], p.Size)
	return out
}

// Unmarshal packet.
func (p *Packet) Unmarshal(buf []byte) {
	flags := buf[0]
	p.IsKeyframe = flags&FlagIsKeyframe != 0
	p.IsEOS = flags&FlagIsEOS != 0

	p.Stream = buf[1]
	p.Granule = int64(binary.BigEndian.Uint64(buf[2:10]))
	p.Duration = int64(binary.BigEndian.Uint64(buf[10:18]))
	p.Offset = binary.BigEndian.Uint32(buf[18:22])
	p.Size = binary.BigEndian.Uint32(buf[22:26])
}
