package mux

import (
	"bytes"
	"fmt"

	"oggmux/pkg/ogg"
	"oggmux/pkg/skeleton"
)

// finalize re-encodes the skeleton track with the final fishead and
// indexes, and overwrites the pages written by Start. The re-encoded
// pages must have the same count and size as the originals.
func (s *Session) finalize() ([]skeleton.IndexReport, error) {
	length, err := s.sink.Length()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFinalizeSeek, err)
	}

	st := ogg.NewStream(s.skeleton.Serial())

	fishead := skeleton.NewFishead(4)
	fishead.SegmentLength = length
	fishead.ContentOffset = s.contentOffset
	st.PacketIn(ogg.Packet{Data: fishead.Marshal()})
	page, ok := st.Flush()
	if !ok {
		return nil, fmt.Errorf("fishead: %w", ErrInternalOgg)
	}
	if page.Len() != s.fisheadPageSize {
		return nil, fmt.Errorf("fishead: %w: %d/%d",
			skeleton.ErrSizeInvariant, page.Len(), s.fisheadPageSize)
	}
	if err := s.sink.WriteAt(0, page.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: fishead: %v", ErrFinalizeSeek, err)
	}

	// The fisbones are unchanged, they are only encoded
	// to advance the page sequence numbers.
	if err := s.addFisbones(st); err != nil {
		return nil, err
	}
	for {
		if _, ok := st.Flush(); !ok {
			break
		}
	}

	var reports []skeleton.IndexReport
	for _, stream := range s.streams() {
		report, err := s.rewriteIndex(st, stream)
		if err != nil {
			return reports, fmt.Errorf("%v index: %w", stream.info.Kind, err)
		}
		s.logReport(stream, report)
		reports = append(reports, report)
		stream.index.Close()
	}
	return reports, nil
}

// rewriteIndex overwrites the placeholder of the stream with its index.
func (s *Session) rewriteIndex(st *ogg.Stream, stream *Stream) (skeleton.IndexReport, error) {
	index := stream.index
	packet, report, err := skeleton.BuildIndex(index, stream.Serial(), len(stream.headers))
	if err != nil {
		return report, err
	}

	st.PacketIn(ogg.Packet{Data: packet})
	var buf bytes.Buffer
	pages := 0
	for {
		page, ok := st.Flush()
		if !ok {
			break
		}
		buf.Write(page.Bytes())
		pages++
	}

	if pages != stream.placeholderPages {
		return report, fmt.Errorf("%w: %d/%d", ErrPageCountDiff, pages, stream.placeholderPages)
	}
	if int64(buf.Len()) != stream.placeholderSize {
		return report, fmt.Errorf("%w: %d/%d",
			skeleton.ErrSizeInvariant, buf.Len(), stream.placeholderSize)
	}

	if err := s.sink.WriteAt(index.PlaceholderOffset(), buf.Bytes()); err != nil {
		return report, fmt.Errorf("%w: %v", ErrFinalizeSeek, err)
	}
	return report, nil
}

func (s *Session) logReport(stream *Stream, r skeleton.IndexReport) {
	switch {
	case r.Selected == 0:
		s.logger.Warn().Src("index").Stream(r.Serial).
			Msgf("no keypoints for %v stream", stream.info.Kind)
	case r.Overflow():
		s.logger.Warn().Src("index").Stream(r.Serial).
			Msgf("underestimated space for %v keyframe index, dropped %d keypoints,"+
				" only part of the file may be indexed, %d bytes are needed",
				stream.info.Kind, r.Dropped(), r.BytesNeeded)
	case r.Underuse():
		s.logger.Info().Src("index").Stream(r.Serial).
			Msgf("allocated %d bytes for %v keyframe index, %d are unused, index contains %d keypoints",
				r.Reserved, stream.info.Kind, r.Unused(), r.Written)
	default:
		s.logger.Debug().Src("index").Stream(r.Serial).
			Msgf("%v index contains %d keypoints", stream.info.Kind, r.Written)
	}
}
