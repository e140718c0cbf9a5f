package interleave

import (
	"fmt"
	"time"

	"oggmux/pkg/codec"
	"oggmux/pkg/ogg"
	"oggmux/pkg/seekindex"
)

// TrackState of the pending page.
type TrackState int

// Track states.
const (
	TrackBuffering TrackState = iota
	TrackPageReady
	TrackFlushed
)

func (s TrackState) String() string {
	switch s {
	case TrackBuffering:
		return "buffering"
	case TrackPageReady:
		return "page ready"
	case TrackFlushed:
		return "flushed"
	}
	return fmt.Sprintf("TrackState(%d)", int(s))
}

// Track is a logical stream with at most one page waiting to be written.
type Track struct {
	Info   codec.Info
	Stream *ogg.Stream

	// Pages are recorded in the index when set.
	Index *seekindex.Index

	page  ogg.Page
	ready bool
	time  time.Duration

	queued   int // Packets not yet written.
	bytesOut int64
	pagesOut int
}

// NewTrack returns a track for the stream.
func NewTrack(info codec.Info, stream *ogg.Stream, index *seekindex.Index) *Track {
	return &Track{
		Info:   info,
		Stream: stream,
		Index:  index,
	}
}

// PacketIn submits a content packet.
func (t *Track) PacketIn(p ogg.Packet) {
	t.Stream.PacketIn(p)
	t.queued++
}

// State returns the state of the track.
func (t *Track) State() TrackState {
	switch {
	case t.ready:
		return TrackPageReady
	case t.Stream.EOS():
		return TrackFlushed
	}
	return TrackBuffering
}

// Time returns the end time of the latest page with a known granule.
func (t *Track) Time() time.Duration {
	return t.time
}

// Queued returns the number of packets submitted but not yet written.
func (t *Track) Queued() int {
	return t.queued
}

// BytesOut returns the number of bytes written.
func (t *Track) BytesOut() int64 {
	return t.bytesOut
}

// PagesOut returns the number of pages written.
func (t *Track) PagesOut() int {
	return t.pagesOut
}

// Kbps returns the average bitrate of the written pages.
func (t *Track) Kbps() int64 {
	if t.time <= 0 {
		return 0
	}
	return int64(float64(t.bytesOut*8) / t.time.Seconds() / 1000)
}

// fetch buffers the next page if none is pending. Pages are cut
// early once more than threshold packets are waiting.
func (t *Track) fetch(force bool, threshold int) {
	if t.ready {
		return
	}

	var page ogg.Page
	var ok bool
	if force || t.queued > threshold {
		page, ok = t.Stream.Flush()
	}
	if !ok && !force {
		page, ok = t.Stream.PageOut()
	}
	if !ok {
		return
	}

	t.page = page
	t.ready = true
	if granule := page.Granule(); granule > 0 {
		t.time = t.Info.PageTime(granule)
	}
}
