// Package mux assembles an interleaved Ogg bitstream from pre-encoded
// video, audio and subtitle packets and embeds a Skeleton keyframe index.
//
// The index is written in a single forward pass: placeholder packets are
// reserved after the headers and overwritten once the whole media has
// been muxed. This requires a seekable output, otherwise an unindexed
// Skeleton 3 track is written.
package mux

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"oggmux/pkg/codec"
	"oggmux/pkg/interleave"
	"oggmux/pkg/log"
	"oggmux/pkg/ogg"
	"oggmux/pkg/seekindex"
	"oggmux/pkg/sink"
	"oggmux/pkg/skeleton"
)

// Config of a session.
type Config struct {
	// Write a skeleton track.
	Skeleton bool

	// Write an unindexed Skeleton 3 track.
	Skeleton3 bool

	// Minimum time between keypoints in milliseconds.
	IndexInterval int64

	// Bytes reserved for each index, negative to size them from Duration.
	VideoIndexReserve    int
	AudioIndexReserve    int
	SubtitleIndexReserve int

	FlushThreshold int

	// Expected duration in milliseconds, negative if unknown.
	Duration int64

	// Two-pass encoding pass, 1 or 2. Nothing is written in the first pass.
	Pass int

	// Serial of the first stream, zero picks a random one.
	BaseSerial uint32
}

// DefaultConfig returns an indexed single pass configuration.
func DefaultConfig(duration int64) Config {
	return Config{
		Skeleton:             true,
		IndexInterval:        2000,
		VideoIndexReserve:    -1,
		AudioIndexReserve:    -1,
		SubtitleIndexReserve: -1,
		FlushThreshold:       interleave.DefaultFlushThreshold,
		Duration:             duration,
	}
}

// Errors.
var (
	ErrSessionState  = errors.New("invalid session state")
	ErrFinalizeSeek  = errors.New("cannot seek output to write index")
	ErrNoStreams     = errors.New("no streams")
	ErrNoHeaders     = errors.New("stream has no header packets")
	ErrStreamEnded   = errors.New("stream already ended")
	ErrInternalOgg   = errors.New("expected a page")
	ErrPageCountDiff = errors.New("rewritten page count differs")
)

type sessionState int

const (
	stateSetup sessionState = iota
	stateWriting
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateSetup:
		return "setup"
	case stateWriting:
		return "writing"
	case stateClosed:
		return "closed"
	}
	return fmt.Sprintf("sessionState(%d)", int(s))
}

// Session muxes the streams of one output.
type Session struct {
	cfg    Config
	logger *log.Logger

	sink        *sink.Sink
	interleaver *interleave.Interleaver

	video     *Stream
	audio     *Stream
	subtitles []*Stream

	state sessionState

	skeleton        *ogg.Stream
	skeleton3       bool
	indexing        bool
	fisheadPageSize int
	contentOffset   int64
}

// NewSession returns a session writing to w.
func NewSession(w io.Writer, cfg Config, logger *log.Logger) *Session {
	s := sink.New(w)
	interleaver := interleave.New(s)
	if cfg.FlushThreshold > 0 {
		interleaver.FlushThreshold = cfg.FlushThreshold
	}
	return &Session{
		cfg:         cfg,
		logger:      logger,
		sink:        s,
		interleaver: interleaver,
		skeleton3:   cfg.Skeleton3,
	}
}

// AddStream adds a stream with its header packets, the first of
// which is the identification header. Must be called before Start.
func (s *Session) AddStream(info codec.Info, headers [][]byte) (*Stream, error) {
	if s.state != stateSetup {
		return nil, fmt.Errorf("add stream: %w: %v", ErrSessionState, s.state)
	}
	if len(headers) == 0 {
		return nil, fmt.Errorf("add %v stream: %w", info.Kind, ErrNoHeaders)
	}

	index := seekindex.New(s.cfg.IndexInterval)
	if info.Kind == codec.KindAudio {
		// Vorbis packets need the preceding packet to be decoded.
		index.SetKeypointPacket(2)
	}

	stream := &Stream{
		session:     s,
		info:        info,
		headers:     headers,
		index:       index,
		prevEndTime: -1,
	}

	switch info.Kind {
	case codec.KindVideo:
		if s.video != nil {
			return nil, fmt.Errorf("%w: %v", interleave.ErrTrackExists, info.Kind)
		}
		s.video = stream
	case codec.KindAudio:
		if s.audio != nil {
			return nil, fmt.Errorf("%w: %v", interleave.ErrTrackExists, info.Kind)
		}
		s.audio = stream
	case codec.KindSubtitle:
		stream.number = len(s.subtitles) + 1
		s.subtitles = append(s.subtitles, stream)
	default:
		return nil, fmt.Errorf("%w: %v", interleave.ErrUnknownKind, info.Kind)
	}
	return stream, nil
}

// streams returns video, audio and then subtitle streams.
func (s *Session) streams() []*Stream {
	var streams []*Stream
	if s.video != nil {
		streams = append(streams, s.video)
	}
	if s.audio != nil {
		streams = append(streams, s.audio)
	}
	return append(streams, s.subtitles...)
}

// allocateSerials assigns consecutive serials to audio,
// video and subtitles, followed by the skeleton.
func (s *Session) allocateSerials() uint32 {
	serial := s.cfg.BaseSerial
	if serial == 0 {
		serial = rand.New(rand.NewSource(time.Now().UnixNano())).Uint32() //nolint:gosec
	}

	order := []*Stream{}
	if s.audio != nil {
		order = append(order, s.audio)
	}
	if s.video != nil {
		order = append(order, s.video)
	}
	order = append(order, s.subtitles...)

	for _, stream := range order {
		stream.track = interleave.NewTrack(stream.info, ogg.NewStream(serial), nil)
		serial++
	}
	return serial
}

// Start writes the stream headers, the skeleton track and
// the index placeholders. Streams cannot be added afterwards.
func (s *Session) Start() error {
	if s.state != stateSetup {
		return fmt.Errorf("start: %w: %v", ErrSessionState, s.state)
	}
	streams := s.streams()
	if len(streams) == 0 {
		return ErrNoStreams
	}
	s.state = stateWriting

	skeletonSerial := s.allocateSerials()
	for _, stream := range streams {
		if err := s.interleaver.AddTrack(stream.track); err != nil {
			return fmt.Errorf("add track: %w", err)
		}
	}

	if s.cfg.Pass == 1 {
		s.logger.Info().Src("mux").Msg("first pass, no output is written")
		return nil
	}

	if s.cfg.Skeleton {
		if err := s.writeFishead(skeletonSerial); err != nil {
			return err
		}
	}

	if err := s.writeHeaders(); err != nil {
		return err
	}

	if !s.cfg.Skeleton {
		s.contentOffset = s.sink.Offset()
		return nil
	}

	if s.indexing {
		if err := s.writePlaceholders(); err != nil {
			return err
		}
	}

	s.skeleton.PacketIn(ogg.Packet{EOS: true})
	if err := s.flushSkeleton(); err != nil {
		return fmt.Errorf("skeleton eos: %w", err)
	}

	s.contentOffset = s.sink.Offset()
	return nil
}

// writeFishead writes a Skeleton 3 fishead to learn whether the output
// is seekable, and replaces it with a Skeleton 4 fishead if indexing.
func (s *Session) writeFishead(serial uint32) error {
	if !s.skeleton3 && s.cfg.Duration < 0 {
		s.logger.Warn().Src("mux").
			Msg("unknown duration, not indexing, writing Skeleton 3 track")
		s.skeleton3 = true
	}

	s.skeleton = ogg.NewStream(serial)
	s.skeleton.PacketIn(ogg.Packet{Data: skeleton.NewFishead(3).Marshal()})
	if err := s.pageOut(s.skeleton); err != nil {
		return fmt.Errorf("fishead: %w", err)
	}

	seekable := s.sink.Seekability() == sink.Seekable
	if !seekable && !s.skeleton3 {
		s.logger.Warn().Src("mux").
			Msg("cannot write keyframe index into non-seekable output, writing Skeleton 3 track")
	}
	s.skeleton3 = s.skeleton3 || !seekable
	if s.skeleton3 {
		return nil
	}

	if err := s.sink.Rewind(); err != nil {
		return fmt.Errorf("rewind output: %w", err)
	}
	s.skeleton = ogg.NewStream(serial + 1)
	s.skeleton.PacketIn(ogg.Packet{Data: skeleton.NewFishead(4).Marshal()})
	start := s.sink.Offset()
	if err := s.pageOut(s.skeleton); err != nil {
		return fmt.Errorf("fishead: %w", err)
	}
	s.fisheadPageSize = int(s.sink.Offset() - start)
	s.indexing = true
	return nil
}

// writeHeaders writes the identification header of every stream on its
// own page, then the fisbones, then the remaining header packets.
func (s *Session) writeHeaders() error {
	streams := s.streams()
	for _, stream := range streams {
		st := stream.track.Stream
		st.PacketIn(ogg.Packet{Data: stream.headers[0]})
		if err := s.pageOut(st); err != nil {
			return fmt.Errorf("%v bos page: %w", stream.info.Kind, err)
		}
		for _, header := range stream.headers[1:] {
			st.PacketIn(ogg.Packet{Data: header})
		}
	}

	if s.cfg.Skeleton {
		if err := s.addFisbones(s.skeleton); err != nil {
			return err
		}
		if err := s.flushSkeleton(); err != nil {
			return fmt.Errorf("fisbones: %w", err)
		}
	}

	// Content starts on a new page.
	for _, stream := range streams {
		if err := s.flushStream(stream.track.Stream); err != nil {
			return fmt.Errorf("%v headers: %w", stream.info.Kind, err)
		}
	}
	return nil
}

// writePlaceholders reserves space for the index of every stream.
func (s *Session) writePlaceholders() error {
	for _, stream := range s.streams() {
		index := stream.index
		keypoints := skeleton.EstimateKeypointCount(index.Interval(), s.cfg.Duration)
		reserve := s.reserve(stream.info.Kind)
		if reserve < 0 {
			reserve = skeleton.DefaultReserve(keypoints)
		}
		index.SetMaxKeypoints(keypoints)
		index.SetReserved(reserve)

		start := s.sink.Offset()
		if err := index.SetPlaceholderOffset(start); err != nil {
			return fmt.Errorf("%v placeholder: %w", stream.info.Kind, err)
		}
		s.skeleton.PacketIn(ogg.Packet{Data: skeleton.Placeholder(stream.Serial(), reserve)})

		pages, err := s.flushPages(s.skeleton)
		if err != nil {
			return fmt.Errorf("%v placeholder: %w", stream.info.Kind, err)
		}
		stream.placeholderPages = pages
		stream.placeholderSize = s.sink.Offset() - start
		stream.track.Index = index

		s.logger.Debug().Src("index").Stream(stream.Serial()).
			Msgf("reserved %d bytes for %d keypoints", reserve, keypoints)
	}
	return nil
}

func (s *Session) reserve(kind codec.Kind) int {
	switch kind {
	case codec.KindVideo:
		return s.cfg.VideoIndexReserve
	case codec.KindAudio:
		return s.cfg.AudioIndexReserve
	}
	return s.cfg.SubtitleIndexReserve
}

// addFisbones submits one fisbone packet per stream.
func (s *Session) addFisbones(st *ogg.Stream) error {
	for _, stream := range s.streams() {
		fisbone, err := newFisbone(stream)
		if err != nil {
			return fmt.Errorf("%v fisbone: %w", stream.info.Kind, err)
		}
		st.PacketIn(ogg.Packet{Data: fisbone.Marshal()})
	}
	return nil
}

func (s *Session) writePage(page ogg.Page) error {
	if _, err := s.sink.Write(page.Bytes()); err != nil {
		return fmt.Errorf("write page: %w", err)
	}
	return nil
}

// pageOut writes the page of a single submitted packet.
func (s *Session) pageOut(st *ogg.Stream) error {
	page, ok := st.PageOut()
	if !ok {
		return ErrInternalOgg
	}
	return s.writePage(page)
}

func (s *Session) flushStream(st *ogg.Stream) error {
	_, err := s.flushPages(st)
	return err
}

// flushPages writes all buffered pages and returns how many were written.
func (s *Session) flushPages(st *ogg.Stream) (int, error) {
	n := 0
	for {
		page, ok := st.Flush()
		if !ok {
			return n, nil
		}
		if err := s.writePage(page); err != nil {
			return n, err
		}
		n++
	}
}

func (s *Session) flushSkeleton() error {
	return s.flushStream(s.skeleton)
}

// Flush writes the pages which can be placed in presentation order.
// When eos is set, every buffered page is written.
func (s *Session) Flush(eos bool) error {
	if s.state != stateWriting {
		return fmt.Errorf("flush: %w: %v", ErrSessionState, s.state)
	}
	if s.cfg.Pass == 1 {
		return nil
	}
	if err := s.interleaver.Flush(eos); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Close ends every stream, writes the remaining pages and, when
// indexing, overwrites the fishead and the index placeholders.
func (s *Session) Close() ([]skeleton.IndexReport, error) {
	if s.state != stateWriting {
		return nil, fmt.Errorf("close: %w: %v", ErrSessionState, s.state)
	}
	s.state = stateClosed

	if s.cfg.Pass == 1 {
		return nil, nil
	}

	for _, stream := range s.streams() {
		if stream.eos {
			continue
		}
		s.logger.Debug().Src("mux").Stream(stream.Serial()).Msg("ending open stream")
		stream.track.PacketIn(ogg.Packet{Granule: stream.lastGranule, EOS: true})
		stream.eos = true
	}

	if err := s.interleaver.Flush(true); err != nil {
		return nil, fmt.Errorf("close: %w", err)
	}

	if !s.indexing {
		return nil, nil
	}
	return s.finalize()
}

// Skeleton3 reports whether an unindexed skeleton is written.
// Only valid after Start.
func (s *Session) Skeleton3() bool {
	return s.skeleton3
}

// Indexing reports whether keyframe indexes are written.
func (s *Session) Indexing() bool {
	return s.indexing
}

// ContentOffset returns the offset of the first content page.
func (s *Session) ContentOffset() int64 {
	return s.contentOffset
}

// Seekability of the output.
func (s *Session) Seekability() sink.Seekability {
	return s.sink.Seekability()
}

// StreamStats encoding statistics of a stream.
type StreamStats struct {
	Serial   uint32
	Kind     codec.Kind
	Packets  int64
	BytesIn  int64
	BytesOut int64
	Pages    int
	Kbps     int64
}

// Stats returns statistics of every stream, video first.
func (s *Session) Stats() []StreamStats {
	var stats []StreamStats
	for _, stream := range s.streams() {
		st := StreamStats{
			Kind:    stream.info.Kind,
			Packets: stream.packets,
			BytesIn: stream.bytesIn,
		}
		if stream.track != nil {
			st.Serial = stream.Serial()
			st.BytesOut = stream.track.BytesOut()
			st.Pages = stream.track.PagesOut()
			st.Kbps = stream.track.Kbps()
		}
		stats = append(stats, st)
	}
	return stats
}
