// Package varint encodes non-negative integers as self-terminating
// sequences of 7-bit groups, least significant group first.
// The last byte of a sequence has its high bit set.
package varint

import "errors"

// MaxLen is the longest encoding of a non-negative int64.
const MaxLen = 9

const terminator = 0x80

// Errors.
var (
	ErrNegative    = errors.New("negative value")
	ErrShortBuffer = errors.New("buffer too small")
	ErrTruncated   = errors.New("truncated varint")
	ErrOverflow    = errors.New("varint overflows int64")
)

// BytesRequired returns the encoded length of n without encoding it.
func BytesRequired(n int64) int {
	bits := 0
	for v := n; v != 0; v >>= 1 {
		bits++
	}
	if bits == 0 {
		return 1
	}
	return (bits + 6) / 7
}

// Append appends the encoding of n to dst. n must not be negative.
func Append(dst []byte, n int64) []byte {
	if n < 0 {
		panic(ErrNegative)
	}
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(dst, b|terminator)
		}
		dst = append(dst, b)
	}
}

// Put encodes n into buf and returns the number of bytes written.
func Put(buf []byte, n int64) (int, error) {
	if n < 0 {
		return 0, ErrNegative
	}
	size := BytesRequired(n)
	if len(buf) < size {
		return 0, ErrShortBuffer
	}
	for i := 0; i < size; i++ {
		buf[i] = byte(n & 0x7f)
		n >>= 7
	}
	buf[size-1] |= terminator
	return size, nil
}

// Decode reads one value from buf and returns it with the number of bytes
// consumed. Bytes after the terminator are left untouched.
func Decode(buf []byte) (int64, int, error) {
	var v uint64
	for i, b := range buf {
		if i == MaxLen {
			return 0, 0, ErrOverflow
		}
		v |= uint64(b&0x7f) << (7 * uint(i))
		if b&terminator != 0 {
			return int64(v), i + 1, nil
		}
	}
	return 0, 0, ErrTruncated
}
