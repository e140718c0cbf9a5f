// Package seekindex records keyframe samples and page geometry of a logical
// stream during muxing, and selects the keypoints of the final seek index.
package seekindex

import (
	"errors"
	"fmt"
	"math"
	"unsafe"
)

// Sample is a keyframe packet.
type Sample struct {
	PacketNo  int64
	StartTime int64 // Milliseconds.
}

// Page records where a page was written and how many packets start on it.
type Page struct {
	Offset       int64
	PacketStarts int
}

// Keypoint is a selected (offset, time) pair of the final index.
type Keypoint struct {
	Offset int64
	Time   int64 // Milliseconds.
}

// State of the index lifecycle.
type State int

// States.
const (
	StateRecording State = iota
	StateFinalizing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Errors.
var (
	ErrAllocation     = errors.New("index store cannot grow")
	ErrNotRecording   = errors.New("index is not recording")
	ErrPlaceholderSet = errors.New("placeholder offset already set")
	ErrZeroOffset     = errors.New("placeholder offset must be non-zero")
	ErrPageNotFound   = errors.New("keyframe packet starts past the last recorded page")
)

// DefaultMaxAlloc is the largest byte size a backing store may grow to.
const DefaultMaxAlloc = math.MaxInt32

// Index holds the keyframes of a stream and the pages they reside on.
type Index struct {
	interval int64 // Minimum time between keypoints, in milliseconds.

	samples []Sample
	pages   []Page

	// Packets counted by RecordPage.
	packetStarts int64

	firstTime int64
	lastTime  int64

	maxKeypoints   int
	reserved       int
	keypointPacket int

	placeholderOffset int64

	maxAlloc int
	state    State
}

// New returns an index that keeps keypoints at least interval
// milliseconds apart. An interval of zero disables indexing.
func New(interval int64) *Index {
	return &Index{
		interval:       interval,
		firstTime:      math.MaxInt64,
		lastTime:       math.MinInt64,
		keypointPacket: 1,
		maxAlloc:       DefaultMaxAlloc,
	}
}

// RecordSample records the start and end time of a packet. Only keyframes
// are added to the index, but every sample extends the indexed range.
func (i *Index) RecordSample(packetNo, startTime, endTime int64, keyframe bool) error {
	if i.state != StateRecording {
		return fmt.Errorf("record sample: %w: %v", ErrNotRecording, i.state)
	}

	if startTime < i.firstTime {
		i.firstTime = startTime
	}
	if endTime > i.lastTime {
		i.lastTime = endTime
	}

	if !keyframe {
		return nil
	}

	newCap, err := grow(cap(i.samples), len(i.samples)+1, int(unsafe.Sizeof(Sample{})), i.maxAlloc)
	if err != nil {
		return fmt.Errorf("record sample %d: %w", packetNo, err)
	}
	if newCap != cap(i.samples) {
		samples := make([]Sample, len(i.samples), newCap)
		copy(samples, i.samples)
		i.samples = samples
	}
	i.samples = append(i.samples, Sample{
		PacketNo:  packetNo,
		StartTime: startTime,
	})
	return nil
}

// RecordPage records a page written at offset with packetStarts
// packets beginning on it.
func (i *Index) RecordPage(offset int64, packetStarts int) error {
	if i.state != StateRecording {
		return fmt.Errorf("record page: %w: %v", ErrNotRecording, i.state)
	}

	newCap, err := grow(cap(i.pages), len(i.pages)+1, int(unsafe.Sizeof(Page{})), i.maxAlloc)
	if err != nil {
		return fmt.Errorf("record page at %d: %w", offset, err)
	}
	if newCap != cap(i.pages) {
		pages := make([]Page, len(i.pages), newCap)
		copy(pages, i.pages)
		i.pages = pages
	}
	i.pages = append(i.pages, Page{
		Offset:       offset,
		PacketStarts: packetStarts,
	})
	i.packetStarts += int64(packetStarts)
	return nil
}

// grow returns the capacity needed to hold target elements. The capacity
// is expanded by 3/2+1 until it holds target.
func grow(capacity, target, elemSize, maxAlloc int) (int, error) {
	if capacity >= target {
		return capacity, nil
	}

	newCap := int64(capacity)
	for newCap >= 0 && newCap < int64(target) {
		newCap = newCap*3/2 + 1
	}
	if newCap < 0 ||
		newCap > int64(maxAlloc) ||
		newCap > int64(maxAlloc)/int64(elemSize) {
		return 0, fmt.Errorf("%w: capacity %d", ErrAllocation, newCap)
	}
	return int(newCap), nil
}

// SetMaxKeypoints sets the number of keypoints the placeholder was sized for.
func (i *Index) SetMaxKeypoints(n int) {
	i.maxKeypoints = n
}

// MaxKeypoints returns the number of keypoints the placeholder was sized for.
func (i *Index) MaxKeypoints() int {
	return i.maxKeypoints
}

// SetReserved sets the number of bytes reserved for keypoint data.
func (i *Index) SetReserved(n int) {
	i.reserved = n
}

// Reserved returns the number of bytes reserved for keypoint data.
func (i *Index) Reserved() int {
	return i.reserved
}

// SetKeypointPacket sets which keyframe starting on a page is eligible as
// that page's keypoint, counting from 1. Codecs whose packets depend on the
// preceding packet use 2.
func (i *Index) SetKeypointPacket(n int) {
	if n < 1 {
		n = 1
	}
	i.keypointPacket = n
}

// SetPlaceholderOffset records where the placeholder page was written.
// It may only be set once.
func (i *Index) SetPlaceholderOffset(offset int64) error {
	if i.placeholderOffset != 0 {
		return ErrPlaceholderSet
	}
	if offset == 0 {
		return ErrZeroOffset
	}
	i.placeholderOffset = offset
	return nil
}

// PlaceholderOffset returns the offset of the placeholder page, zero if unset.
func (i *Index) PlaceholderOffset() int64 {
	return i.placeholderOffset
}

// Interval returns the minimum time between keypoints in milliseconds.
func (i *Index) Interval() int64 {
	return i.interval
}

// FirstTime returns the start time of the earliest sample.
func (i *Index) FirstTime() int64 {
	return i.firstTime
}

// LastTime returns the end time of the latest sample.
func (i *Index) LastTime() int64 {
	return i.lastTime
}

// TimeRange returns the indexed time range, zero if no samples were recorded.
func (i *Index) TimeRange() (int64, int64) {
	if i.firstTime > i.lastTime {
		return 0, 0
	}
	return i.firstTime, i.lastTime
}

// Samples returns the recorded keyframes.
func (i *Index) Samples() []Sample {
	return i.samples
}

// Pages returns the recorded pages.
func (i *Index) Pages() []Page {
	return i.pages
}

// PacketStarts returns the total number of packets starting on recorded pages.
func (i *Index) PacketStarts() int64 {
	return i.packetStarts
}

// State returns the lifecycle state.
func (i *Index) State() State {
	return i.state
}

// Close releases the recorded data.
func (i *Index) Close() {
	i.samples = nil
	i.pages = nil
	i.state = StateClosed
}
