package ogg

// Ogg uses the unreflected CRC-32 with polynomial 0x04c11db7 and an initial
// value of zero, which hash/crc32 cannot express.
const crcPoly = 0x04c11db7

var crcTable = func() [256]uint32 {
	var table [256]uint32
	for i := range table {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = r<<1 ^ crcPoly
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	return table
}()

func crcUpdate(crc uint32, p []byte) uint32 {
	for _, b := range p {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}
