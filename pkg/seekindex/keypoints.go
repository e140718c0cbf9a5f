package seekindex

import (
	"fmt"
	"math"
)

// Keypoints selects the keypoints of the final index and moves the index
// into the finalizing state. numHeaders is the number of header packets
// preceding the first recorded page.
//
// Samples are mapped to the page their packet starts on by walking the pages
// forward. Each page yields at most one keypoint: the keypointPacket'th
// keyframe starting on it, provided it is at least interval milliseconds
// after the previously selected keypoint.
func (i *Index) Keypoints(numHeaders int) ([]Keypoint, error) {
	if i.state == StateClosed {
		return nil, fmt.Errorf("keypoints: %w: %v", ErrNotRecording, i.state)
	}
	i.state = StateFinalizing

	if i.interval <= 0 || len(i.samples) == 0 {
		return nil, nil
	}

	var keypoints []Keypoint

	lastPacketNo := int64(numHeaders - 1)
	pageNo := 0
	prevPageNo := -1
	packetInPage := 0
	prevTime := int64(math.MinInt64)

	for _, sample := range i.samples {
		// Advance to the page which contains the start of the packet.
		for pageNo < len(i.pages) &&
			lastPacketNo+int64(i.pages[pageNo].PacketStarts) < sample.PacketNo {
			lastPacketNo += int64(i.pages[pageNo].PacketStarts)
			pageNo++
		}
		if pageNo >= len(i.pages) {
			return nil, fmt.Errorf("%w: packet %d", ErrPageNotFound, sample.PacketNo)
		}

		if pageNo != prevPageNo {
			packetInPage = 1
			prevPageNo = pageNo
		} else {
			packetInPage++
		}

		if packetInPage != i.keypointPacket {
			continue
		}
		if len(keypoints) != 0 && sample.StartTime < prevTime+i.interval {
			continue
		}

		keypoints = append(keypoints, Keypoint{
			Offset: i.pages[pageNo].Offset,
			Time:   sample.StartTime,
		})
		prevTime = sample.StartTime
	}
	return keypoints, nil
}
