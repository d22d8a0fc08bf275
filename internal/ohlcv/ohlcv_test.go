package ohlcv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func at(sec int) time.Time {
	return time.Date(2026, 1, 1, 12, 0, sec, 0, time.UTC)
}

func TestTicksWithinSameMinuteFoldIntoOneCandle(t *testing.T) {
	b := New("BTC-USD", 0, nil)
	b.OnTick(Tick{Timestamp: at(0), Price: 100, Volume: 1})
	b.OnTick(Tick{Timestamp: at(10), Price: 105, Volume: 2})
	b.OnTick(Tick{Timestamp: at(20), Price: 95, Volume: 3})

	require.Empty(t, b.Snapshot())
	cur := b.Current()
	require.NotNil(t, cur)
	require.Equal(t, 100.0, cur.Open)
	require.Equal(t, 105.0, cur.High)
	require.Equal(t, 95.0, cur.Low)
	require.Equal(t, 95.0, cur.Close)
	require.Equal(t, 6.0, cur.Volume)
	require.False(t, cur.Complete)
}

func TestCrossingMinuteBoundaryFinalizesCandle(t *testing.T) {
	b := New("BTC-USD", 0, nil)
	b.OnTick(Tick{Timestamp: at(0), Price: 100, Volume: 1})
	b.OnTick(Tick{Timestamp: time.Date(2026, 1, 1, 12, 1, 5, 0, time.UTC), Price: 110, Volume: 1})

	snap := b.Snapshot()
	require.Len(t, snap, 1)
	require.True(t, snap[0].Complete)
	require.Equal(t, 100.0, snap[0].Close)
}

func TestSnapshotNeverContainsInProgressCandle(t *testing.T) {
	b := New("BTC-USD", 0, nil)
	b.OnTick(Tick{Timestamp: at(0), Price: 100, Volume: 1})
	require.Empty(t, b.Snapshot())
}

func TestRingBufferRespectsCapacity(t *testing.T) {
	b := New("BTC-USD", 3, nil)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		b.OnTick(Tick{Timestamp: base.Add(time.Duration(i) * time.Minute), Price: float64(100 + i), Volume: 1})
	}
	snap := b.Snapshot()
	require.LessOrEqual(t, len(snap), 3)
}

func TestSeedPreloadsHistory(t *testing.T) {
	b := New("BTC-USD", 0, nil)
	b.Seed([]Candle{{OpenTime: at(0), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}})
	snap := b.Snapshot()
	require.Len(t, snap, 1)
	require.True(t, snap[0].Complete)
}
