package codec

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/icza/bitio"
	"github.com/stretchr/testify/require"
)

type theoraParams struct {
	version [3]uint8
	width   uint32
	height  uint32
	fpsNum  uint32
	fpsDen  uint32
	shift   uint8
}

func theoraHeader(t *testing.T, p theoraParams) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString(theoraMagic)

	w := bitio.NewWriter(&buf)
	fields := []struct {
		v uint64
		n uint8
	}{
		{uint64(p.version[0]), 8},
		{uint64(p.version[1]), 8},
		{uint64(p.version[2]), 8},
		{uint64(p.width+15) / 16, 16},
		{uint64(p.height+15) / 16, 16},
		{uint64(p.width), 24},
		{uint64(p.height), 24},
		{0, 8},
		{0, 8},
		{uint64(p.fpsNum), 32},
		{uint64(p.fpsDen), 32},
		{1, 24},
		{1, 24},
		{0, 8},
		{0, 24},
		{48, 6},
		{uint64(p.shift), 5},
		{0, 2},
		{0, 3},
	}
	for _, f := range fields {
		require.NoError(t, w.WriteBits(f.v, f.n))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func vorbisHeader(channels uint8, rate uint32) []byte {
	out := make([]byte, vorbisHeaderSize)
	copy(out, vorbisMagic)
	out[11] = channels
	binary.LittleEndian.PutUint32(out[12:], rate)
	out[28] = 0xb8 // Block sizes.
	out[29] = 1    // Framing.
	return out
}

func kateHeader(numHeaders uint8, num, den uint32, shift uint8, lang string) []byte {
	out := make([]byte, kateHeaderSize)
	copy(out, kateMagic)
	out[9] = 0 // Version major.
	out[10] = 5
	out[11] = numHeaders
	out[15] = shift
	binary.LittleEndian.PutUint32(out[24:], num)
	binary.LittleEndian.PutUint32(out[28:], den)
	copy(out[32:], lang)
	copy(out[48:], "SUB")
	return out
}

func TestParseTheora(t *testing.T) {
	header := theoraHeader(t, theoraParams{
		version: [3]uint8{3, 2, 1},
		width:   320,
		height:  240,
		fpsNum:  30000,
		fpsDen:  1001,
		shift:   6,
	})
	require.Len(t, header, theoraHeaderSize)

	info, err := ParseTheora(header)
	require.NoError(t, err)

	expected := &Info{
		Kind:            KindVideo,
		Codec:           "theora",
		NumHeaders:      3,
		VersionMajor:    3,
		VersionMinor:    2,
		VersionRevision: 1,
		Width:           320,
		Height:          240,
		FPSNum:          30000,
		FPSDen:          1001,
		KeyframeShift:   6,
	}
	require.Equal(t, expected, info)

	t.Run("truncated", func(t *testing.T) {
		_, err := ParseTheora(header[:20])
		require.ErrorIs(t, err, ErrInvalidHeader)
	})
	t.Run("zeroFrameRate", func(t *testing.T) {
		header := theoraHeader(t, theoraParams{version: [3]uint8{3, 2, 1}, fpsDen: 1})
		_, err := ParseTheora(header)
		require.ErrorIs(t, err, ErrInvalidHeader)
	})
}

func TestParseVorbis(t *testing.T) {
	info, err := ParseVorbis(vorbisHeader(2, 44100))
	require.NoError(t, err)

	expected := &Info{
		Kind:       KindAudio,
		Codec:      "vorbis",
		NumHeaders: 3,
		Channels:   2,
		SampleRate: 44100,
	}
	require.Equal(t, expected, info)

	_, err = ParseVorbis(vorbisHeader(0, 44100))
	require.ErrorIs(t, err, ErrInvalidHeader)
}

func TestParseKate(t *testing.T) {
	info, err := ParseKate(kateHeader(9, 1000, 1, 32, "en"))
	require.NoError(t, err)

	expected := &Info{
		Kind:         KindSubtitle,
		Codec:        "kate",
		NumHeaders:   9,
		GranuleNum:   1000,
		GranuleDen:   1,
		GranuleShift: 32,
		Language:     "en",
		Category:     "SUB",
	}
	require.Equal(t, expected, info)
}

func TestProbe(t *testing.T) {
	cases := []struct {
		name     string
		header   []byte
		expected Kind
	}{
		{"theora", theoraHeader(t, theoraParams{version: [3]uint8{3, 2, 0}, fpsNum: 25, fpsDen: 1}), KindVideo},
		{"vorbis", vorbisHeader(1, 8000), KindAudio},
		{"kate", kateHeader(3, 1000, 1, 32, ""), KindSubtitle},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info, err := Probe(tc.header)
			require.NoError(t, err)
			require.Equal(t, tc.expected, info.Kind)
		})
	}

	_, err := Probe([]byte("\x7fFLAC"))
	require.ErrorIs(t, err, ErrUnknownCodec)
}

func TestGranuleFrame(t *testing.T) {
	cases := []struct {
		name     string
		revision uint8
		granule  int64
		expected int64
	}{
		{"keyframe", 0, 10 << 6, 10},
		{"interframe", 0, 10<<6 + 3, 13},
		{"countFromOne", 1, 10<<6 + 3, 12},
		{"invalid", 1, -1, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := Info{
				Kind:            KindVideo,
				VersionMajor:    3,
				VersionMinor:    2,
				VersionRevision: tc.revision,
				KeyframeShift:   6,
			}
			require.Equal(t, tc.expected, info.GranuleFrame(tc.granule))
		})
	}
}

func TestTime(t *testing.T) {
	video := Info{Kind: KindVideo, FPSNum: 25, FPSDen: 1}
	require.Equal(t, int64(480), video.FrameTime(12))
	require.Equal(t, int64(520), video.FrameTime(13))

	audio := Info{Kind: KindAudio, SampleRate: 44100}
	require.Equal(t, int64(1000), audio.SampleTime(44100))
	require.Equal(t, int64(22), audio.SampleTime(1000))

	subtitle := Info{Kind: KindSubtitle, GranuleNum: 1000, GranuleDen: 1, GranuleShift: 32}
	require.Equal(t, int64(5000), subtitle.GranuleTime(5000<<32))
	require.Equal(t, int64(5250), subtitle.GranuleTime(5000<<32+250))
	require.Equal(t, int64(-1), subtitle.GranuleTime(-1))
}

func TestGranuleRate(t *testing.T) {
	num, den := Info{Kind: KindAudio, SampleRate: 48000}.GranuleRate()
	require.Equal(t, int64(48000), num)
	require.Equal(t, int64(1), den)

	num, den = Info{Kind: KindVideo, FPSNum: 30000, FPSDen: 1001}.GranuleRate()
	require.Equal(t, int64(30000), num)
	require.Equal(t, int64(1001), den)

	require.Equal(t, uint32(2), Info{Kind: KindAudio}.Preroll())
	require.Equal(t, uint32(0), Info{Kind: KindVideo}.Preroll())
}

func TestPageTime(t *testing.T) {
	video := Info{Kind: KindVideo, FPSNum: 25, FPSDen: 1, KeyframeShift: 6}
	require.Equal(t, 1*time.Second, video.PageTime(24<<6))

	audio := Info{Kind: KindAudio, SampleRate: 48000}
	require.Equal(t, 900*time.Millisecond, audio.PageTime(43200))

	subtitle := Info{Kind: KindSubtitle, GranuleNum: 1000, GranuleDen: 1, GranuleShift: 32}
	require.Equal(t, 500*time.Millisecond, subtitle.PageTime(500<<32))
}
