package varint

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBytesRequired(t *testing.T) {
	cases := []struct {
		input    int64
		expected int
	}{
		{0, 1},
		{1, 1},
		{127, 1},
		{128, 2},
		{16383, 2},
		{16384, 3},
		{math.MaxInt64, 9},
	}
	for _, tc := range cases {
		require.Equal(t, tc.expected, BytesRequired(tc.input), tc.input)
	}
}

func TestAppend(t *testing.T) {
	cases := []struct {
		input    int64
		expected []byte
	}{
		{0, []byte{0x80}},
		{1, []byte{0x81}},
		{127, []byte{0xff}},
		{128, []byte{0x00, 0x81}},
		{300, []byte{0x2c, 0x82}},
		{2000, []byte{0x50, 0x8f}},
	}
	for _, tc := range cases {
		require.Equal(t, tc.expected, Append(nil, tc.input))
	}
}

func TestAppendNegative(t *testing.T) {
	require.Panics(t, func() { Append(nil, -1) })
}

func TestRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	values := []int64{0, 1, 127, 128, 1 << 62, math.MaxInt64}
	for i := 0; i < 1000; i++ {
		values = append(values, r.Int63()>>uint(r.Intn(63)))
	}

	for _, v := range values {
		encoded := Append(nil, v)
		require.Len(t, encoded, BytesRequired(v))

		decoded, n, err := Decode(encoded)
		require.NoError(t, err)
		require.Equal(t, v, decoded)
		require.Equal(t, len(encoded), n)

		buf := make([]byte, MaxLen)
		n, err = Put(buf, v)
		require.NoError(t, err)
		require.Equal(t, encoded, buf[:n])
	}
}

func TestPut(t *testing.T) {
	t.Run("shortBuffer", func(t *testing.T) {
		_, err := Put(make([]byte, 1), 128)
		require.ErrorIs(t, err, ErrShortBuffer)
	})
	t.Run("negative", func(t *testing.T) {
		_, err := Put(make([]byte, MaxLen), -5)
		require.ErrorIs(t, err, ErrNegative)
	})
}

func TestDecode(t *testing.T) {
	t.Run("sequence", func(t *testing.T) {
		buf := Append(Append(nil, 300), 5)

		v, n, err := Decode(buf)
		require.NoError(t, err)
		require.Equal(t, int64(300), v)

		v, _, err = Decode(buf[n:])
		require.NoError(t, err)
		require.Equal(t, int64(5), v)
	})
	t.Run("truncated", func(t *testing.T) {
		_, _, err := Decode([]byte{0x2c, 0x02})
		require.ErrorIs(t, err, ErrTruncated)
	})
	t.Run("empty", func(t *testing.T) {
		_, _, err := Decode(nil)
		require.ErrorIs(t, err, ErrTruncated)
	})
	t.Run("overflow", func(t *testing.T) {
		buf := []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0x81}
		_, _, err := Decode(buf)
		require.ErrorIs(t, err, ErrOverflow)
	})
}
