package skeleton

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFisheadMarshal(t *testing.T) {
	t.Run("v3", func(t *testing.T) {
		actual := NewFishead(3).Marshal()
		expected := []byte{
			0x66, 0x69, 0x73, 0x68, 0x65, 0x61, 0x64, 0x00, // Identifier.
			0x03, 0x00, // Version major.
			0x00, 0x00, // Version minor.
			0, 0, 0, 0, 0, 0, 0, 0, // Presentation numerator.
			0xe8, 0x03, 0, 0, 0, 0, 0, 0, // Presentation denominator.
			0, 0, 0, 0, 0, 0, 0, 0, // Base numerator.
			0xe8, 0x03, 0, 0, 0, 0, 0, 0, // Base denominator.
			0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // UTC.
			0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		}
		require.Equal(t, expected, actual)
	})
	t.Run("v4", func(t *testing.T) {
		h := NewFishead(4)
		h.SegmentLength = 12345
		h.ContentOffset = 678

		actual := h.Marshal()
		require.Len(t, actual, FisheadSizeV4)
		expected := []byte{
			0x39, 0x30, 0, 0, 0, 0, 0, 0, // Segment length.
			0xa6, 0x02, 0, 0, 0, 0, 0, 0, // Content offset.
		}
		require.Equal(t, expected, actual[64:])
		require.Equal(t, []byte{0x04, 0x00}, actual[8:10])
	})
	t.Run("v4Unknown", func(t *testing.T) {
		actual := NewFishead(4).Marshal()
		for _, b := range actual[64:] {
			require.Equal(t, byte(0xff), b)
		}
	})
}

func TestUnmarshalFishead(t *testing.T) {
	h := NewFishead(4)
	h.SegmentLength = 999999
	h.ContentOffset = 4321

	actual, err := UnmarshalFishead(h.Marshal())
	require.NoError(t, err)
	require.Equal(t, h, *actual)

	v3, err := UnmarshalFishead(NewFishead(3).Marshal())
	require.NoError(t, err)
	require.Equal(t, NewFishead(3), *v3)

	_, err = UnmarshalFishead(make([]byte, 10))
	require.ErrorIs(t, err, ErrPacketTooShort)

	_, err = UnmarshalFishead(make([]byte, FisheadSizeV3))
	require.ErrorIs(t, err, ErrInvalidIdentifier)
}
