package seekindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestIndex records count keyframes, every 1000ms, with perPage
// packets starting on each page. Three header packets precede them.
func newTestIndex(t *testing.T, interval int64, count, perPage int) *Index {
	t.Helper()
	index := New(interval)
	for i := 0; i < count; i++ {
		start := int64(i * 1000)
		err := index.RecordSample(int64(3+i), start, start+1000, true)
		require.NoError(t, err)
	}
	for i := 0; i < count/perPage; i++ {
		err := index.RecordPage(int64(4000+i*10000), perPage)
		require.NoError(t, err)
	}
	return index
}

func TestKeypoints(t *testing.T) {
	t.Run("onePerPage", func(t *testing.T) {
		index := newTestIndex(t, 2000, 10, 2)

		keypoints, err := index.Keypoints(3)
		require.NoError(t, err)

		expected := []Keypoint{
			{Offset: 4000, Time: 0},
			{Offset: 14000, Time: 2000},
			{Offset: 24000, Time: 4000},
			{Offset: 34000, Time: 6000},
			{Offset: 44000, Time: 8000},
		}
		require.Equal(t, expected, keypoints)
		require.Equal(t, StateFinalizing, index.State())
	})
	t.Run("interval", func(t *testing.T) {
		index := newTestIndex(t, 3000, 10, 1)

		keypoints, err := index.Keypoints(3)
		require.NoError(t, err)

		expected := []Keypoint{
			{Offset: 4000, Time: 0},
			{Offset: 34000, Time: 3000},
			{Offset: 64000, Time: 6000},
			{Offset: 94000, Time: 9000},
		}
		require.Equal(t, expected, keypoints)
	})
	t.Run("secondPacket", func(t *testing.T) {
		index := newTestIndex(t, 1000, 6, 3)
		index.SetKeypointPacket(2)

		keypoints, err := index.Keypoints(3)
		require.NoError(t, err)

		expected := []Keypoint{
			{Offset: 4000, Time: 1000},
			{Offset: 14000, Time: 4000},
		}
		require.Equal(t, expected, keypoints)
	})
	t.Run("pageWithoutKeyframe", func(t *testing.T) {
		index := New(1000)
		require.NoError(t, index.RecordSample(3, 0, 40, true))
		require.NoError(t, index.RecordSample(4, 40, 80, false))
		require.NoError(t, index.RecordSample(5, 80, 120, false))
		require.NoError(t, index.RecordSample(6, 1500, 1540, true))

		require.NoError(t, index.RecordPage(100, 2))
		require.NoError(t, index.RecordPage(200, 1))
		require.NoError(t, index.RecordPage(300, 1))

		keypoints, err := index.Keypoints(3)
		require.NoError(t, err)

		expected := []Keypoint{
			{Offset: 100, Time: 0},
			{Offset: 300, Time: 1500},
		}
		require.Equal(t, expected, keypoints)
	})
	t.Run("continuedPage", func(t *testing.T) {
		index := New(1000)
		require.NoError(t, index.RecordSample(3, 0, 40, true))
		require.NoError(t, index.RecordSample(4, 2000, 2040, true))

		// The second page only continues packet 3.
		require.NoError(t, index.RecordPage(100, 1))
		require.NoError(t, index.RecordPage(200, 0))
		require.NoError(t, index.RecordPage(300, 1))

		keypoints, err := index.Keypoints(3)
		require.NoError(t, err)

		expected := []Keypoint{
			{Offset: 100, Time: 0},
			{Offset: 300, Time: 2000},
		}
		require.Equal(t, expected, keypoints)
	})
	t.Run("disabled", func(t *testing.T) {
		index := newTestIndex(t, 0, 10, 2)

		keypoints, err := index.Keypoints(3)
		require.NoError(t, err)
		require.Empty(t, keypoints)
	})
	t.Run("pageNotFound", func(t *testing.T) {
		index := New(1000)
		require.NoError(t, index.RecordSample(3, 0, 40, true))
		require.NoError(t, index.RecordSample(9, 2000, 2040, true))
		require.NoError(t, index.RecordPage(100, 2))

		_, err := index.Keypoints(3)
		require.ErrorIs(t, err, ErrPageNotFound)
	})
}
