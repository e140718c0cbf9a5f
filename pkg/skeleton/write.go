package skeleton

import (
	"encoding/binary"
)

// Skeleton fields are little-endian, unlike the rest of this repository.

func write(buf []byte, pos *int, p []byte) {
	*pos += copy(buf[*pos:], p)
}

func writeByte(buf []byte, pos *int, byt byte) {
	buf[*pos] = byt
	*pos++
}

func writeUint16(buf []byte, pos *int, r uint16) {
	binary.LittleEndian.PutUint16(buf[*pos:], r)
	*pos += 2
}

func writeUint32(buf []byte, pos *int, r uint32) {
	binary.LittleEndian.PutUint32(buf[*pos:], r)
	*pos += 4
}

func writeInt64(buf []byte, pos *int, r int64) {
	binary.LittleEndian.PutUint64(buf[*pos:], uint64(r))
	*pos += 8
}

func readInt64(buf []byte, pos *int) int64 {
	r := int64(binary.LittleEndian.Uint64(buf[*pos:]))
	*pos += 8
	return r
}
