package mux

import (
	"fmt"

	"oggmux/pkg/codec"
	"oggmux/pkg/interleave"
	"oggmux/pkg/ogg"
	"oggmux/pkg/seekindex"
	"oggmux/pkg/skeleton"
)

// Stream is a logical stream of a session.
type Stream struct {
	session *Session
	info    codec.Info
	headers [][]byte
	number  int // Subtitle streams are numbered from 1.

	track *interleave.Track
	index *seekindex.Index

	placeholderPages int
	placeholderSize  int64

	prevGranule int64 // Audio.
	prevEndTime int64 // Subtitles, -1 before the first packet.
	lastGranule int64

	packets int64
	bytesIn int64
	eos     bool
}

// Info returns the identification header of the stream.
func (st *Stream) Info() codec.Info {
	return st.info
}

// Serial returns the serial number, valid after Start.
func (st *Stream) Serial() uint32 {
	if st.track == nil {
		return 0
	}
	return st.track.Stream.Serial()
}

// Index returns the seek index of the stream.
func (st *Stream) Index() *seekindex.Index {
	return st.index
}

// WritePacket submits a content packet. Pages are
// only written to the output by Flush and Close.
func (st *Stream) WritePacket(p codec.Packet) error {
	s := st.session
	if s.state != stateWriting {
		return fmt.Errorf("write packet: %w: %v", ErrSessionState, s.state)
	}
	if st.eos {
		return fmt.Errorf("write packet: %w: %08x", ErrStreamEnded, st.Serial())
	}

	st.packets++
	st.bytesIn += int64(len(p.Data))
	st.eos = p.EOS
	if p.Granule >= 0 {
		st.lastGranule = p.Granule
	}

	if s.cfg.Pass == 1 {
		return nil
	}

	packetNo := st.track.Stream.PacketsIn()
	start, end, ok := st.sampleTime(p, packetNo)
	if ok && s.indexing {
		keyframe := p.Keyframe || st.info.Kind != codec.KindVideo
		if err := st.index.RecordSample(packetNo, start, end, keyframe); err != nil {
			return fmt.Errorf("%v packet %d: %w", st.info.Kind, packetNo, err)
		}
	}

	st.track.PacketIn(ogg.Packet{
		Data:    p.Data,
		Granule: p.Granule,
		EOS:     p.EOS,
	})
	return nil
}

// sampleTime returns the presentation interval of a packet in
// milliseconds, ok is false if the packet has no known time.
func (st *Stream) sampleTime(p codec.Packet, packetNo int64) (int64, int64, bool) {
	switch st.info.Kind {
	case codec.KindVideo:
		frame := st.info.GranuleFrame(p.Granule)
		if frame < 0 {
			return 0, 0, false
		}
		return st.info.FrameTime(frame), st.info.FrameTime(frame + 1), true

	case codec.KindAudio:
		return st.audioTime(p, packetNo)

	case codec.KindSubtitle:
		start := st.info.GranuleTime(p.Granule)
		if start < 0 {
			return 0, 0, false
		}
		end := start + p.Duration
		if st.prevEndTime >= 0 {
			start = st.prevEndTime
		}
		st.prevEndTime = end
		return start, end, true
	}
	return 0, 0, false
}

// audioTime starts a packet where its samples begin. Leading samples
// before zero and samples overlapping the previous packet are not played.
func (st *Stream) audioTime(p codec.Packet, packetNo int64) (int64, int64, bool) {
	if p.Granule < 0 {
		return 0, 0, false
	}

	startGranule := p.Granule - p.Duration
	if startGranule < 0 {
		// Only the first packets carrying samples may start before zero.
		if packetNo > int64(len(st.headers))+1 {
			st.session.logger.Warn().Src("index").Stream(st.Serial()).
				Msgf("audio packet %d has calculated start granule of %d, but it should be non-negative",
					packetNo, startGranule)
		}
		startGranule = 0
	}
	if startGranule < st.prevGranule {
		if !p.EOS {
			st.session.logger.Warn().Src("index").Stream(st.Serial()).
				Msgf("audio packet %d (granule %d) starts before the end of the preceding packet",
					packetNo, p.Granule)
		}
		startGranule = st.prevGranule
	}
	st.prevGranule = p.Granule

	return st.info.SampleTime(startGranule), st.info.SampleTime(p.Granule), true
}

// newFisbone describes the stream in the skeleton track.
func newFisbone(st *Stream) (*skeleton.Fisbone, error) {
	num, den := st.info.GranuleRate()
	fisbone := &skeleton.Fisbone{
		Serial:       st.Serial(),
		NumHeaders:   uint32(len(st.headers)),
		GranuleNum:   num,
		GranuleDen:   den,
		StartGranule: 0,
		Preroll:      st.info.Preroll(),
		GranuleShift: st.info.Shift(),
	}

	var fields [][2]string
	switch st.info.Kind {
	case codec.KindVideo:
		fields = [][2]string{
			{"Content-Type", "video/theora"},
			{"Role", "video/main"},
			{"Name", "video_1"},
		}
	case codec.KindAudio:
		fields = [][2]string{
			{"Content-Type", "audio/vorbis"},
			{"Role", "audio/main"},
			{"Name", "audio_1"},
		}
	case codec.KindSubtitle:
		fields = [][2]string{
			{"Content-Type", "application/x-kate"},
			{"Role", "text/subtitle"},
			{"Name", fmt.Sprint(st.number)},
		}
		if st.info.Language != "" {
			fields = append(fields, [2]string{"Language", st.info.Language})
		}
	}
	for _, f := range fields {
		if err := fisbone.Headers.Add(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	return fisbone, nil
}
