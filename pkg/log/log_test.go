// Copyright 2020-2021 The OS-NVR Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package log

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) (*Logger, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	logger := NewMockLogger()
	logger.Start(ctx)
	return logger, cancel
}

func TestLogger(t *testing.T) {
	t.Run("fields", func(t *testing.T) {
		logger, cancel := newTestLogger(t)
		defer cancel()

		feed, cancel2 := logger.Subscribe()
		defer cancel2()

		go logger.Warn().
			Src("index").
			Stream(0xa001).
			Time(time.Unix(1, 0)).
			Msgf("%d keypoints dropped", 3)

		actual := <-feed
		expected := Log{
			Level:  LevelWarning,
			Time:   1000000,
			Msg:    "3 keypoints dropped",
			Src:    "index",
			Stream: "0000a001",
		}
		require.Equal(t, expected, actual)
	})
	t.Run("levels", func(t *testing.T) {
		logger, cancel := newTestLogger(t)
		defer cancel()

		feed, cancel2 := logger.Subscribe()
		defer cancel2()

		cases := []struct {
			event    func() *Event
			expected Level
		}{
			{logger.Error, LevelError},
			{logger.Warn, LevelWarning},
			{logger.Info, LevelInfo},
			{logger.Debug, LevelDebug},
		}
		for _, tc := range cases {
			go tc.event().Msg("")
			require.Equal(t, tc.expected, (<-feed).Level)
		}
	})
	t.Run("unsubBeforeMsg", func(t *testing.T) {
		logger, cancel := newTestLogger(t)
		defer cancel()

		feed1, cancel1 := logger.Subscribe()
		feed2, cancel2 := logger.Subscribe()
		cancel2()

		go logger.Info().Msg("test")
		actual1 := <-feed1
		actual2, ok := <-feed2
		cancel1()

		require.Equal(t, "test", actual1.Msg)
		require.False(t, ok)
		require.Equal(t, Log{}, actual2)
	})
}

func TestLogToWriter(t *testing.T) {
	logger, cancel := newTestLogger(t)
	defer cancel()

	ctx, cancel2 := context.WithCancel(context.Background())
	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		logger.LogToWriter(ctx, &buf, LevelInfo)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)

	logger.Info().Src("mux").Stream(1).Msg("a")
	logger.Debug().Src("mux").Msg("hidden")
	logger.Error().Msg("b")
	time.Sleep(10 * time.Millisecond)
	cancel2()
	<-done

	require.Equal(t, "[INFO] 00000001: Mux: a\n[ERROR] b\n", buf.String())
}

func TestParseLevel(t *testing.T) {
	for _, l := range []Level{LevelError, LevelWarning, LevelInfo, LevelDebug} {
		parsed, err := ParseLevel(strings.ToLower(l.String()))
		require.NoError(t, err)
		require.Equal(t, l, parsed)
	}
	_, err := ParseLevel("verbose")
	require.ErrorIs(t, err, ErrUnknownLevel)

	require.Equal(t, []Level{LevelError, LevelWarning}, LevelsUpTo(LevelWarning))
	require.Empty(t, LevelsUpTo(0))
}
