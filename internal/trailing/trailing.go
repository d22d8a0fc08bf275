// Package trailing implements the per-position breakeven-then-trailing
// stop state machine. Grounded on the teacher's internal/execution.Tracker
// (per-position mutable state keyed by symbol, updated on every tick) for
// the shape of per-symbol state tracking, generalized here to own the
// stop-loss ratchet instead of fills.
package trailing

import "github.com/keryxflow/keryxflow/internal/eventbus"

// State is one position's trailing-stop bookkeeping.
type State struct {
	Symbol                string
	IsLong                bool
	Entry                 float64
	CurrentStop           float64
	HighestFavorablePrice float64
	BreakevenArmed        bool
	TrailingActive        bool
}

// Config holds the trailing parameters. Zero value is meaningless; use
// Default.
type Config struct {
	BreakevenEnabled    bool
	BreakevenTriggerPct float64
	TrailingEnabled     bool
	TrailingPct         float64
	TrailingATRMult     float64 // if > 0, used instead of TrailingPct
}

// Default returns breakeven at 1% gain, trailing at 1% once active.
func Default() Config {
	return Config{
		BreakevenEnabled:    true,
		BreakevenTriggerPct: 0.01,
		TrailingEnabled:     true,
		TrailingPct:         0.01,
	}
}

// Manager tracks trailing-stop state for every open position.
type Manager struct {
	cfg   Config
	bus   *eventbus.Bus
	state map[string]*State
}

// New constructs a Manager.
func New(cfg Config, bus *eventbus.Bus) *Manager {
	return &Manager{cfg: cfg, bus: bus, state: make(map[string]*State)}
}

// Open registers a new position's initial stop.
func (m *Manager) Open(symbol string, isLong bool, entry, initialStop float64) {
	m.state[symbol] = &State{
		Symbol:                symbol,
		IsLong:                isLong,
		Entry:                 entry,
		CurrentStop:           initialStop,
		HighestFavorablePrice: entry,
	}
}

// Close removes tracked state for a symbol once its position is closed.
func (m *Manager) Close(symbol string) { delete(m.state, symbol) }

// State returns the tracked state for a symbol, or nil if none is open.
func (m *Manager) State(symbol string) *State { return m.state[symbol] }

// OnTick applies the breakeven-then-trailing update for one price tick.
// Breakeven always evaluates before trailing within the same tick. Returns
// the new stop and whether it changed.
func (m *Manager) OnTick(symbol string, price, atr float64) (float64, bool) {
	s := m.state[symbol]
	if s == nil {
		return 0, false
	}

	changed := false
	trailed := false

	if m.cfg.BreakevenEnabled && !s.BreakevenArmed {
		gainPct := unrealizedGainPct(s, price)
		if gainPct >= m.cfg.BreakevenTriggerPct {
			s.BreakevenArmed = true
			if s.IsLong && s.Entry > s.CurrentStop {
				s.CurrentStop = s.Entry
				changed = true
				m.emit(eventbus.KindStopLossBreakeven, s)
			} else if !s.IsLong && s.Entry < s.CurrentStop {
				s.CurrentStop = s.Entry
				changed = true
				m.emit(eventbus.KindStopLossBreakeven, s)
			}
		}
	}

	if m.cfg.TrailingEnabled {
		if s.IsLong {
			if price > s.HighestFavorablePrice {
				s.HighestFavorablePrice = price
			}
			candidate := m.trailCandidate(s.HighestFavorablePrice, atr, true)
			newStop := maxFloat(s.CurrentStop, candidate)
			if newStop != s.CurrentStop {
				s.CurrentStop = newStop
				s.TrailingActive = true
				changed = true
				trailed = true
			}
		} else {
			if price < s.HighestFavorablePrice {
				s.HighestFavorablePrice = price
			}
			candidate := m.trailCandidate(s.HighestFavorablePrice, atr, false)
			newStop := minFloat(s.CurrentStop, candidate)
			if newStop != s.CurrentStop {
				s.CurrentStop = newStop
				s.TrailingActive = true
				changed = true
				trailed = true
			}
		}
	}

	if trailed {
		m.emit(eventbus.KindStopLossTrailed, s)
	}

	return s.CurrentStop, changed
}

func (m *Manager) trailCandidate(referencePrice, atr float64, isLong bool) float64 {
	if m.cfg.TrailingATRMult > 0 && atr > 0 {
		if isLong {
			return referencePrice - m.cfg.TrailingATRMult*atr
		}
		return referencePrice + m.cfg.TrailingATRMult*atr
	}
	if isLong {
		return referencePrice * (1 - m.cfg.TrailingPct)
	}
	return referencePrice * (1 + m.cfg.TrailingPct)
}

func unrealizedGainPct(s *State, price float64) float64 {
	if s.Entry == 0 {
		return 0
	}
	if s.IsLong {
		return (price - s.Entry) / s.Entry
	}
	return (s.Entry - price) / s.Entry
}

func (m *Manager) emit(kind eventbus.Kind, s *State) {
	if m.bus == nil {
		return
	}
	snapshot := *s
	m.bus.Publish(eventbus.Event{Category: eventbus.CategoryTrailing, Kind: kind, Payload: snapshot})
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
