// Package riskmanager is the single choke point between a Signal and an
// order. It wraps internal/quant (sizing), internal/breaker (circuit
// state), and internal/guardrails (hard limits) into the seven-step
// approval pipeline, emitting order_requested before and order_approved/
// order_rejected after via the shared event bus. Grounded on the teacher's
// internal/risk.Manager.Allow (breaker-then-limits decision shape) and
// internal/app.App's order-placement call sites, which always check
// risk.Manager before calling into the paper simulator or execution
// tracker.
package riskmanager

import (
	"time"

	"github.com/keryxflow/keryxflow/internal/aggregator"
	"github.com/keryxflow/keryxflow/internal/breaker"
	"github.com/keryxflow/keryxflow/internal/eventbus"
	"github.com/keryxflow/keryxflow/internal/guardrails"
	"github.com/keryxflow/keryxflow/internal/money"
	"github.com/keryxflow/keryxflow/internal/quant"
)

// SoftRules are per-order checks that are not hard guardrail limits but
// still block a trade: minimum risk:reward, maximum concurrent positions,
// and whether the symbol already has an open position (no pyramiding).
type SoftRules struct {
	MinRiskReward        float64
	MaxConcurrentPositions int
}

// DefaultSoftRules returns MinRiskReward 1.5, MaxConcurrentPositions 5.
func DefaultSoftRules() SoftRules {
	return SoftRules{MinRiskReward: 1.5, MaxConcurrentPositions: 5}
}

// PortfolioState is the live state the risk manager needs beyond what
// guardrails.Snapshot already carries: balance for sizing, open position
// count for the soft concurrent-position rule, and the guardrail snapshot
// itself.
type PortfolioState struct {
	Balance         money.Amount
	OpenPositions   int
	RiskPctPerTrade float64
	Snapshot        guardrails.Snapshot

	// HasOpenPosition is true when the signal's own symbol already has an
	// open position. The no-pyramiding soft rule rejects a fresh entry
	// in that case.
	HasOpenPosition bool
	// OpenQuantity is the existing position's quantity, used to size a
	// CLOSE_LONG/CLOSE_SHORT order; ignored for fresh entries.
	OpenQuantity float64
}

// OrderIntent is the constructed order the pipeline produces on approval.
type OrderIntent struct {
	Symbol   string
	Side     guardrails.ActionKind
	Quantity float64
	Entry    float64
	Stop     float64
	Target   float64
}

// Decision is the pipeline's outcome.
type Decision struct {
	Approved bool
	Reason   string
	Order    OrderIntent
}

// Manager runs the seven-step pipeline.
type Manager struct {
	breaker   *breaker.Breaker
	limits    guardrails.Limits
	softRules SoftRules
	bus       *eventbus.Bus
}

// New constructs a Manager.
func New(br *breaker.Breaker, limits guardrails.Limits, soft SoftRules, bus *eventbus.Bus) *Manager {
	return &Manager{breaker: br, limits: limits, softRules: soft, bus: bus}
}

// Evaluate runs the pipeline for sig against state. Rejections are routine
// outcomes, never errors: the caller should treat every Decision as final
// and continue its loop regardless of Approved.
func (m *Manager) Evaluate(sig aggregator.Signal, state PortfolioState) Decision {
	m.publish(eventbus.KindOrderRequested, sig)

	if !sig.Actionable {
		return m.reject("no actionable signal")
	}

	if sig.Action == aggregator.ActionCloseLong || sig.Action == aggregator.ActionCloseShort {
		return m.evaluateClose(sig, state)
	}

	if sig.Stop == sig.Entry {
		return m.reject("stop loss required")
	}

	qty := quant.PositionSize(state.Balance.Float64(), state.RiskPctPerTrade, sig.Entry, sig.Stop)
	if qty <= 0 {
		return m.reject("stop loss required")
	}

	side := guardrails.ActionMarketBuy
	if sig.Direction < 0 {
		side = guardrails.ActionMarketSell
	}
	order := OrderIntent{
		Symbol:   sig.Symbol,
		Side:     side,
		Quantity: qty,
		Entry:    sig.Entry,
		Stop:     sig.Stop,
		Target:   sig.Target,
	}

	if m.breaker != nil && !m.breaker.PermitsEntry() {
		return m.rejectWithOrder("circuit breaker not armed: "+string(m.breaker.State()), order)
	}

	notional := money.FromFloat(qty * sig.Entry)
	riskAmount := money.FromFloat(qty * absFloat(sig.Entry-sig.Stop))

	action := guardrails.Action{
		Kind:          side,
		Symbol:        sig.Symbol,
		NotionalValue: notional,
		RiskAmount:    riskAmount,
	}
	if d := guardrails.Validate(action, state.Snapshot, m.limits); !d.Allowed {
		return m.rejectWithOrder(d.Reason, order)
	}

	if reason, ok := m.checkSoftRules(sig, state); !ok {
		return m.rejectWithOrder(reason, order)
	}

	m.publish(eventbus.KindOrderApproved, order)
	return Decision{Approved: true, Order: order}
}

// evaluateClose handles CLOSE_LONG/CLOSE_SHORT signals. These exit an
// already-open position rather than size a new one, so they skip the
// risk:reward and concurrent-position soft rules and the circuit
// breaker's entry gate entirely. An explicit close still succeeds while
// the breaker is tripped; it is the breaker's own exit valve.
func (m *Manager) evaluateClose(sig aggregator.Signal, state PortfolioState) Decision {
	if !state.HasOpenPosition || state.OpenQuantity <= 0 {
		return m.reject("no open position to close")
	}

	side := guardrails.ActionClose
	order := OrderIntent{
		Symbol:   sig.Symbol,
		Side:     side,
		Quantity: state.OpenQuantity,
		Entry:    sig.Entry,
	}

	notional := money.FromFloat(state.OpenQuantity * sig.Entry)
	action := guardrails.Action{
		Kind:          side,
		Symbol:        sig.Symbol,
		NotionalValue: notional,
	}
	if d := guardrails.Validate(action, state.Snapshot, m.limits); !d.Allowed {
		return m.rejectWithOrder(d.Reason, order)
	}

	m.publish(eventbus.KindOrderApproved, order)
	return Decision{Approved: true, Order: order}
}

func (m *Manager) checkSoftRules(sig aggregator.Signal, state PortfolioState) (string, bool) {
	if state.HasOpenPosition {
		return "symbol already has an open position (no pyramiding)", false
	}
	rr := quant.RiskReward(sig.Entry, sig.Stop, sig.Target)
	if rr < m.softRules.MinRiskReward {
		return "risk:reward below minimum", false
	}
	if m.softRules.MaxConcurrentPositions > 0 && state.OpenPositions >= m.softRules.MaxConcurrentPositions {
		return "max concurrent positions reached", false
	}
	return "", true
}

func (m *Manager) reject(reason string) Decision {
	m.publish(eventbus.KindOrderRejected, reason)
	return Decision{Approved: false, Reason: reason}
}

func (m *Manager) rejectWithOrder(reason string, order OrderIntent) Decision {
	m.publish(eventbus.KindOrderRejected, reason)
	return Decision{Approved: false, Reason: reason, Order: order}
}

func (m *Manager) publish(kind eventbus.Kind, payload interface{}) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{
		Category:  eventbus.CategoryOrder,
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
