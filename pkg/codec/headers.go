package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/icza/bitio"
)

const (
	theoraMagic = "\x80theora"
	vorbisMagic = "\x01vorbis"
	kateMagic   = "\x80kate\x00\x00\x00"

	theoraHeaderSize = 42
	vorbisHeaderSize = 30
	kateHeaderSize   = 64
)

// ParseTheora parses a Theora identification header.
func ParseTheora(header []byte) (*Info, error) { //nolint:funlen
	// ref: Theora specification, section 6.2.
	if !hasMagic(header, theoraMagic) || len(header) < theoraHeaderSize {
		return nil, fmt.Errorf("theora: %w", ErrInvalidHeader)
	}

	r := bitio.NewReader(bytes.NewBuffer(header[len(theoraMagic):]))
	var err error
	read := func(n uint8) uint64 {
		if err != nil {
			return 0
		}
		var v uint64
		v, err = r.ReadBits(n)
		return v
	}

	info := &Info{
		Kind:       KindVideo,
		Codec:      "theora",
		NumHeaders: 3,
	}
	info.VersionMajor = uint8(read(8))
	info.VersionMinor = uint8(read(8))
	info.VersionRevision = uint8(read(8))

	// Frame size in macroblocks.
	read(16)
	read(16)

	info.Width = uint32(read(24))
	info.Height = uint32(read(24))

	// Picture offset.
	read(8)
	read(8)

	info.FPSNum = uint32(read(32))
	info.FPSDen = uint32(read(32))

	// Pixel aspect ratio, color space and nominal bitrate.
	read(24)
	read(24)
	read(8)
	read(24)

	// Quality.
	read(6)
	info.KeyframeShift = uint8(read(5))

	if err != nil {
		return nil, fmt.Errorf("theora: %w", err)
	}
	if info.VersionMajor != 3 {
		return nil, fmt.Errorf("theora: %w: version %d.%d.%d", ErrInvalidHeader,
			info.VersionMajor, info.VersionMinor, info.VersionRevision)
	}
	if info.FPSNum == 0 || info.FPSDen == 0 {
		return nil, fmt.Errorf("theora: %w: frame rate %d/%d", ErrInvalidHeader, info.FPSNum, info.FPSDen)
	}
	return info, nil
}

// ParseVorbis parses a Vorbis identification header.
func ParseVorbis(header []byte) (*Info, error) {
	if !hasMagic(header, vorbisMagic) || len(header) < vorbisHeaderSize {
		return nil, fmt.Errorf("vorbis: %w", ErrInvalidHeader)
	}

	pos := len(vorbisMagic)
	version := binary.LittleEndian.Uint32(header[pos:])
	pos += 4
	if version != 0 {
		return nil, fmt.Errorf("vorbis: %w: version %d", ErrInvalidHeader, version)
	}

	info := &Info{
		Kind:       KindAudio,
		Codec:      "vorbis",
		NumHeaders: 3,
		Channels:   header[pos],
	}
	pos++
	info.SampleRate = binary.LittleEndian.Uint32(header[pos:])

	if info.Channels == 0 || info.SampleRate == 0 {
		return nil, fmt.Errorf("vorbis: %w: %d channels at %dHz",
			ErrInvalidHeader, info.Channels, info.SampleRate)
	}
	return info, nil
}

// ParseKate parses a Kate identification header.
func ParseKate(header []byte) (*Info, error) {
	if !hasMagic(header, kateMagic) || len(header) < kateHeaderSize {
		return nil, fmt.Errorf("kate: %w", ErrInvalidHeader)
	}

	info := &Info{
		Kind:         KindSubtitle,
		Codec:        "kate",
		NumHeaders:   int(header[11]),
		GranuleShift: header[15],
		GranuleNum:   binary.LittleEndian.Uint32(header[24:]),
		GranuleDen:   binary.LittleEndian.Uint32(header[28:]),
		Language:     cString(header[32:48]),
		Category:     cString(header[48:64]),
	}
	if info.NumHeaders == 0 || info.GranuleNum == 0 || info.GranuleDen == 0 {
		return nil, fmt.Errorf("kate: %w", ErrInvalidHeader)
	}
	return info, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i != -1 {
		b = b[:i]
	}
	return string(b)
}
