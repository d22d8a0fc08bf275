// Package breaker implements the circuit breaker state machine: armed,
// tripped, cooldown. Grounded on the teacher's internal/risk.Manager, which
// tracks consecutive losses and a cooldown window with the same shape
// (InCooldown/CooldownRemaining/RecordTradeResult); this package narrows
// that manager down to the breaker's own state machine and leaves
// portfolio bookkeeping to the caller (cmd/keryxflow's riskBookkeeper).
package breaker

import (
	"sync"
	"time"
)

// State is one of the three breaker states.
type State string

const (
	StateArmed    State = "armed"
	StateTripped  State = "tripped"
	StateCooldown State = "cooldown"
)

// Config holds the trip thresholds. Zero value is meaningless; use Default.
type Config struct {
	MaxDailyLossPct      float64
	MaxWeeklyLossPct     float64
	MaxTotalDrawdownPct  float64
	MaxConsecutiveLosses int

	// RapidLossCount losses within RapidLossWindow trip the breaker even if
	// no single threshold above was crossed.
	RapidLossCount  int
	RapidLossWindow time.Duration

	CooldownDuration time.Duration
}

// Default returns the breaker defaults from the trading-core design: 5%
// daily loss, 10% weekly loss, 20% total drawdown, 5 consecutive losses,
// 3 losses within 1h, 1h cooldown.
func Default() Config {
	return Config{
		MaxDailyLossPct:      0.05,
		MaxWeeklyLossPct:     0.10,
		MaxTotalDrawdownPct:  0.20,
		MaxConsecutiveLosses: 5,
		RapidLossCount:       3,
		RapidLossWindow:      time.Hour,
		CooldownDuration:     time.Hour,
	}
}

// Inputs is the live risk telemetry the breaker evaluates on each Check.
// Loss and drawdown fields are non-positive fractions: a 6% daily loss is
// DailyLossPct -0.06.
type Inputs struct {
	DailyLossPct      float64
	WeeklyLossPct     float64
	TotalDrawdownPct  float64
	ConsecutiveLosses int
	LossTimestamps    []time.Time // recent loss timestamps, most-recent-last
}

// Breaker is the trip/cooldown/reset state machine. Safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	cfg Config

	state       State
	trippedAt   time.Time
	tripReason  string
	now         func() time.Time
}

// New constructs an armed Breaker with the given config.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: StateArmed, now: time.Now}
}

// Check evaluates inputs against the thresholds and trips the breaker if
// any is crossed. No-op if already tripped or in cooldown. Returns the
// resulting state and, if it just tripped, the reason.
func (b *Breaker) Check(in Inputs) (State, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateArmed {
		return b.state, b.tripReason
	}

	if reason, tripped := b.evaluate(in); tripped {
		b.tripLocked(reason)
		return b.state, b.tripReason
	}
	return b.state, ""
}

func (b *Breaker) evaluate(in Inputs) (string, bool) {
	if in.DailyLossPct <= -b.cfg.MaxDailyLossPct {
		return "max daily loss exceeded", true
	}
	if in.WeeklyLossPct <= -b.cfg.MaxWeeklyLossPct {
		return "max weekly loss exceeded", true
	}
	if in.TotalDrawdownPct <= -b.cfg.MaxTotalDrawdownPct {
		return "max total drawdown exceeded", true
	}
	if b.cfg.MaxConsecutiveLosses > 0 && in.ConsecutiveLosses >= b.cfg.MaxConsecutiveLosses {
		return "max consecutive losses reached", true
	}
	if b.cfg.RapidLossCount > 0 && rapidLosses(in.LossTimestamps, b.cfg.RapidLossWindow, b.now()) >= b.cfg.RapidLossCount {
		return "rapid loss window threshold reached", true
	}
	return "", false
}

func rapidLosses(timestamps []time.Time, window time.Duration, now time.Time) int {
	cutoff := now.Add(-window)
	count := 0
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}

// Trip manually trips the breaker with an operator-supplied reason,
// regardless of current state, unless already tripped/cooldown.
func (b *Breaker) Trip(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateArmed {
		b.tripLocked(reason)
	}
}

func (b *Breaker) tripLocked(reason string) {
	b.state = StateTripped
	b.tripReason = reason
	b.trippedAt = b.now()
	b.state = StateCooldown
}

// Reset attempts to re-arm the breaker. Fails (returns false) if still in
// cooldown. Always fails while armed is meaningless (nothing to reset) but
// returns true as a no-op for callers that reset defensively.
func (b *Breaker) Reset() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateArmed:
		return true
	case StateCooldown, StateTripped:
		if b.now().Sub(b.trippedAt) < b.cfg.CooldownDuration {
			return false
		}
		b.state = StateArmed
		b.tripReason = ""
		return true
	}
	return false
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// CooldownRemaining returns how much cooldown time is left, or 0 if armed
// or the cooldown has already elapsed.
func (b *Breaker) CooldownRemaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateArmed {
		return 0
	}
	remaining := b.cfg.CooldownDuration - b.now().Sub(b.trippedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// PermitsEntry reports whether new entry orders may proceed. Always false
// outside of armed.
func (b *Breaker) PermitsEntry() bool {
	return b.State() == StateArmed
}

// PermitsExit always returns true: exits (close, panic) are never blocked
// by the breaker.
func (b *Breaker) PermitsExit() bool { return true }
