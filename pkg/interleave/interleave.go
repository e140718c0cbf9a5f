// Package interleave writes the pages of several logical streams in
// presentation time order.
package interleave

import (
	"errors"
	"fmt"
	"io"

	"oggmux/pkg/codec"
)

// DefaultFlushThreshold is the number of waiting packets
// above which a page is cut before it is full.
const DefaultFlushThreshold = 22

// Writer is the destination of the pages.
type Writer interface {
	io.Writer
	Offset() int64
}

// Errors.
var (
	ErrTrackExists = errors.New("track of this kind already added")
	ErrUnknownKind = errors.New("unknown track kind")
)

// Interleaver orders pages of a video, an audio and any number of
// subtitle tracks. Subtitle pages are cut as soon as possible.
type Interleaver struct {
	FlushThreshold int

	w         Writer
	video     *Track
	audio     *Track
	subtitles []*Track
}

// New returns an interleaver writing to w.
func New(w Writer) *Interleaver {
	return &Interleaver{
		FlushThreshold: DefaultFlushThreshold,
		w:              w,
	}
}

// AddTrack adds a track. There can be one video and one audio track.
func (i *Interleaver) AddTrack(t *Track) error {
	switch t.Info.Kind {
	case codec.KindVideo:
		if i.video != nil {
			return fmt.Errorf("%w: %v", ErrTrackExists, t.Info.Kind)
		}
		i.video = t
	case codec.KindAudio:
		if i.audio != nil {
			return fmt.Errorf("%w: %v", ErrTrackExists, t.Info.Kind)
		}
		i.audio = t
	case codec.KindSubtitle:
		i.subtitles = append(i.subtitles, t)
	default:
		return fmt.Errorf("%w: %v", ErrUnknownKind, t.Info.Kind)
	}
	return nil
}

// Flush writes every page that can be placed in order. Pages of one
// primary track can only be written once the other primary track has a
// page ready, unless eos is set.
func (i *Interleaver) Flush(eos bool) error {
	for {
		if i.video != nil {
			i.video.fetch(false, i.FlushThreshold)
		}
		if i.audio != nil {
			i.audio.fetch(false, i.FlushThreshold)
		}
		for _, t := range i.subtitles {
			t.fetch(true, i.FlushThreshold)
		}

		next := i.next(eos)
		if next == nil {
			return nil
		}
		if err := i.write(next); err != nil {
			return err
		}
	}
}

// next returns the track whose page should be written next.
func (i *Interleaver) next(eos bool) *Track {
	subtitle := i.bestSubtitle()
	videoReady := i.video != nil && i.video.ready
	audioReady := i.audio != nil && i.audio.ready

	// Subtitles are written before a primary page that ends later.
	before := func(primary *Track) *Track {
		if subtitle != nil && subtitle.time <= primary.time {
			return subtitle
		}
		return primary
	}

	switch {
	case i.audio == nil && videoReady:
		return before(i.video)
	case i.video == nil && audioReady:
		return before(i.audio)
	case videoReady && audioReady:
		if i.video.time <= i.audio.time {
			return before(i.video)
		}
		return before(i.audio)
	case i.video == nil && i.audio == nil && subtitle != nil:
		return subtitle
	case eos:
		return earliest(i.video, i.audio, subtitle)
	}
	return nil
}

// earliest returns the ready track with the earliest page,
// earlier arguments win ties.
func earliest(tracks ...*Track) *Track {
	var best *Track
	for _, t := range tracks {
		if t == nil || !t.ready {
			continue
		}
		if best == nil || t.time < best.time {
			best = t
		}
	}
	return best
}

// bestSubtitle returns the ready subtitle track with the earliest page.
func (i *Interleaver) bestSubtitle() *Track {
	var best *Track
	for _, t := range i.subtitles {
		if t.ready && (best == nil || t.time < best.time) {
			best = t
		}
	}
	return best
}

func (i *Interleaver) write(t *Track) error {
	offset := i.w.Offset()
	if _, err := i.w.Write(t.page.Bytes()); err != nil {
		return fmt.Errorf("write %v page: %w", t.Info.Kind, err)
	}

	t.ready = false
	t.queued -= t.page.Packets()
	t.bytesOut += int64(t.page.Len())
	t.pagesOut++

	if t.Index != nil {
		if err := t.Index.RecordPage(offset, t.page.StartPackets()); err != nil {
			return fmt.Errorf("record %v page: %w", t.Info.Kind, err)
		}
	}
	return nil
}

// Tracks returns all tracks, video first.
func (i *Interleaver) Tracks() []*Track {
	var tracks []*Track
	if i.video != nil {
		tracks = append(tracks, i.video)
	}
	if i.audio != nil {
		tracks = append(tracks, i.audio)
	}
	return append(tracks, i.subtitles...)
}
