package seekindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordSample(t *testing.T) {
	t.Run("extremes", func(t *testing.T) {
		index := New(2000)
		times := []struct {
			start    int64
			end      int64
			keyframe bool
		}{
			{500, 540, false},
			{120, 160, true},
			{900, 940, false},
			{300, 340, true},
		}
		for i, tc := range times {
			err := index.RecordSample(int64(i), tc.start, tc.end, tc.keyframe)
			require.NoError(t, err)
		}

		require.Equal(t, int64(120), index.FirstTime())
		require.Equal(t, int64(940), index.LastTime())

		expected := []Sample{
			{PacketNo: 1, StartTime: 120},
			{PacketNo: 3, StartTime: 300},
		}
		require.Equal(t, expected, index.Samples())
	})
	t.Run("emptyRange", func(t *testing.T) {
		first, last := New(2000).TimeRange()
		require.Equal(t, int64(0), first)
		require.Equal(t, int64(0), last)
	})
	t.Run("allocationFailure", func(t *testing.T) {
		index := New(1000)
		index.maxAlloc = 64

		require.NoError(t, index.RecordSample(1, 0, 1, true))
		require.NoError(t, index.RecordSample(2, 1, 2, true))
		require.NoError(t, index.RecordSample(3, 2, 3, true))
		require.NoError(t, index.RecordSample(4, 3, 4, true))
		require.Equal(t, 4, cap(index.samples))

		err := index.RecordSample(5, 4, 5, true)
		require.ErrorIs(t, err, ErrAllocation)
		require.Len(t, index.Samples(), 4)
	})
	t.Run("afterFinalize", func(t *testing.T) {
		index := New(1000)
		_, err := index.Keypoints(3)
		require.NoError(t, err)

		err = index.RecordSample(1, 0, 1, true)
		require.ErrorIs(t, err, ErrNotRecording)
		err = index.RecordPage(100, 1)
		require.ErrorIs(t, err, ErrNotRecording)
	})
}

func TestRecordPage(t *testing.T) {
	index := New(1000)
	starts := []int{1, 0, 3, 2, 0, 7}
	total := 0
	for i, n := range starts {
		require.NoError(t, index.RecordPage(int64(1000*(i+1)), n))
		total += n
	}
	require.Equal(t, int64(total), index.PacketStarts())
	require.Len(t, index.Pages(), len(starts))

	sum := 0
	for _, p := range index.Pages() {
		sum += p.PacketStarts
	}
	require.Equal(t, total, sum)
}

func TestGrow(t *testing.T) {
	cases := []struct {
		capacity int
		target   int
		expected int
	}{
		{0, 1, 1},
		{1, 2, 2},
		{2, 1, 2},
		{2, 2, 2},
		{2, 3, 4},
		{4, 4, 4},
		{4, 5, 7},
		{7, 8, 11},
		{0, 10, 11},
	}
	for _, tc := range cases {
		actual, err := grow(tc.capacity, tc.target, 16, DefaultMaxAlloc)
		require.NoError(t, err)
		require.Equal(t, tc.expected, actual)
	}

	t.Run("overflow", func(t *testing.T) {
		_, err := grow(1<<20, 1<<28, 16, DefaultMaxAlloc)
		require.ErrorIs(t, err, ErrAllocation)
	})
}

func TestPlaceholderOffset(t *testing.T) {
	index := New(1000)
	require.ErrorIs(t, index.SetPlaceholderOffset(0), ErrZeroOffset)
	require.NoError(t, index.SetPlaceholderOffset(4096))
	require.ErrorIs(t, index.SetPlaceholderOffset(8192), ErrPlaceholderSet)
	require.Equal(t, int64(4096), index.PlaceholderOffset())
}

func TestClose(t *testing.T) {
	index := New(1000)
	require.NoError(t, index.RecordSample(3, 0, 40, true))
	index.Close()

	require.Equal(t, StateClosed, index.State())
	require.Nil(t, index.Samples())

	_, err := index.Keypoints(3)
	require.ErrorIs(t, err, ErrNotRecording)
}
