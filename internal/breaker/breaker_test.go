package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestArmedUntilThresholdCrossed(t *testing.T) {
	b := New(Default())
	state, _ := b.Check(Inputs{DailyLossPct: -0.01})
	require.Equal(t, StateArmed, state)
}

func TestTripsOnDailyLoss(t *testing.T) {
	b := New(Default())
	state, reason := b.Check(Inputs{DailyLossPct: -0.06})
	require.Equal(t, StateCooldown, state)
	require.Contains(t, reason, "daily loss")
}

func TestTripsOnConsecutiveLosses(t *testing.T) {
	b := New(Default())
	state, _ := b.Check(Inputs{ConsecutiveLosses: 5})
	require.Equal(t, StateCooldown, state)
}

func TestTripsOnRapidLossWindow(t *testing.T) {
	b := New(Default())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b.now = fixedClock(now)
	losses := []time.Time{
		now.Add(-50 * time.Minute),
		now.Add(-20 * time.Minute),
		now.Add(-5 * time.Minute),
	}
	state, reason := b.Check(Inputs{LossTimestamps: losses})
	require.Equal(t, StateCooldown, state)
	require.Contains(t, reason, "rapid loss")
}

func TestResetRejectedDuringCooldown(t *testing.T) {
	b := New(Default())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b.now = fixedClock(now)
	b.Trip("manual")
	require.False(t, b.Reset())
	require.Equal(t, StateCooldown, b.State())
}

func TestResetSucceedsAfterCooldownExpires(t *testing.T) {
	b := New(Default())
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b.now = fixedClock(start)
	b.Trip("manual")

	b.now = fixedClock(start.Add(2 * time.Hour))
	require.True(t, b.Reset())
	require.Equal(t, StateArmed, b.State())
}

func TestExitsAlwaysPermitted(t *testing.T) {
	b := New(Default())
	b.Trip("manual")
	require.False(t, b.PermitsEntry())
	require.True(t, b.PermitsExit())
}

func TestCooldownRemaining(t *testing.T) {
	b := New(Default())
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b.now = fixedClock(start)
	b.Trip("manual")

	b.now = fixedClock(start.Add(30 * time.Minute))
	remaining := b.CooldownRemaining()
	require.InDelta(t, 30*time.Minute, remaining, float64(time.Second))
}
