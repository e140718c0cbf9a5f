package packetdump

import (
	"bytes"
	"testing"

	"oggmux/pkg/codec"

	"github.com/stretchr/testify/require"
)

func TestHeaderMarshal(t *testing.T) {
	header := Header{
		Streams: []Stream{
			{Headers: [][]byte{{1, 2}, {3}}},
			{Headers: [][]byte{{}}},
		},
		Duration: 1000,
	}
	actual, err := header.Marshal()
	require.NoError(t, err)

	expected := []byte{
		0, // Version.
		2, // Stream count.
		2, // Header count.
		0, 0, 0, 2, 1, 2,
		0, 0, 0, 1, 3,
		1, // Header count.
		0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0x03, 0xe8, // Duration.
	}
	require.Equal(t, expected, actual)
	require.Len(t, actual, header.Size())

	var unmarshaled Header
	n, err := unmarshaled.Unmarshal(bytes.NewReader(actual))
	require.NoError(t, err)
	require.Equal(t, len(actual), n)
	require.Equal(t, header, unmarshaled)
}

func TestHeaderUnsupportedVersion(t *testing.T) {
	var header Header
	_, err := header.Unmarshal(bytes.NewReader([]byte{1, 0}))
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestPacketMarshal(t *testing.T) {
	p := Packet{
		IsKeyframe: true,
		Stream:     1,
		Granule:    0x0102,
		Duration:   1024,
		Offset:     7,
		Size:       9,
	}
	expected := []byte{
		FlagIsKeyframe,
		1,                            // Stream.
		0, 0, 0, 0, 0, 0, 0x01, 0x02, // Granule.
		0, 0, 0, 0, 0, 0, 0x04, 0x00, // Duration.
		0, 0, 0, 7, // Offset.
		0, 0, 0, 9, // Size.
	}
	require.Equal(t, expected, p.Marshal())

	var unmarshaled Packet
	unmarshaled.Unmarshal(expected)
	require.Equal(t, p, unmarshaled)
}

func TestWriteRead(t *testing.T) {
	header := Header{
		Streams: []Stream{
			{Headers: [][]byte{[]byte("video")}},
			{Headers: [][]byte{[]byte("audio")}},
		},
		Duration: -1,
	}

	var meta, mdat bytes.Buffer
	w, err := NewWriter(&meta, &mdat, header)
	require.NoError(t, err)

	packets := []struct {
		stream int
		packet codec.Packet
	}{
		{0, codec.Packet{Data: []byte("key"), Granule: 0, Keyframe: true}},
		{1, codec.Packet{Data: []byte("samples"), Granule: 1024, Duration: 1024}},
		{0, codec.Packet{Data: []byte{}, Granule: 1, EOS: true}},
	}
	for _, p := range packets {
		require.NoError(t, w.WritePacket(p.stream, p.packet))
	}
	require.ErrorIs(t, w.WritePacket(2, codec.Packet{}), ErrUnknownStream)

	r, readHeader, err := NewReader(bytes.NewReader(meta.Bytes()), meta.Len())
	require.NoError(t, err)
	require.Equal(t, header, *readHeader)
	require.Equal(t, 3, r.PacketCount())

	records, err := r.ReadAllPackets()
	require.NoError(t, err)

	expected := []Packet{
		{IsKeyframe: true, Stream: 0, Offset: 0, Size: 3},
		{Stream: 1, Granule: 1024, Duration: 1024, Offset: 3, Size: 7},
		{IsEOS: true, Stream: 0, Granule: 1, Offset: 10, Size: 0},
	}
	require.Equal(t, expected, records)

	mdatReader := bytes.NewReader(mdat.Bytes())
	for i, record := range records {
		packet, err := ReadPacket(mdatReader, int64(mdat.Len()), record)
		require.NoError(t, err)
		require.Equal(t, packets[i].packet, packet)
	}
}

func TestReadPacketOutOfBounds(t *testing.T) {
	mdat := bytes.NewReader(make([]byte, 10))

	cases := map[string]Packet{
		"pastEnd":  {Offset: 8, Size: 3},
		"hugeSize": {Offset: 0, Size: 0xffffffff},
		"offset":   {Offset: 11, Size: 0},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadPacket(mdat, 10, p)
			require.ErrorIs(t, err, ErrOutOfBounds)
		})
	}

	packet, err := ReadPacket(mdat, 10, Packet{Offset: 10, Size: 0, IsEOS: true})
	require.NoError(t, err)
	require.Empty(t, packet.Data)
	require.True(t, packet.EOS)
}
