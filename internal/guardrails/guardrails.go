// Package guardrails implements the hard, compiled-in risk limits that sit
// between every proposed order and the executor. Mirrors the teacher's
// internal/risk.Manager in spirit (a frozen Config plus a pure decision
// function over a live snapshot) but narrows the surface to a single pure
// validate call, per the KeryxFlow design: the enforcer holds no state of
// its own and can never be talked out of a limit at runtime.
package guardrails

import "github.com/keryxflow/keryxflow/internal/money"

// ActionKind enumerates every action the executor is allowed to receive.
// Anything else is rejected by Validate as unknown.
type ActionKind string

const (
	ActionMarketBuy  ActionKind = "market_buy"
	ActionMarketSell ActionKind = "market_sell"
	ActionLimitBuy   ActionKind = "limit_buy"
	ActionLimitSell  ActionKind = "limit_sell"
	ActionCancel     ActionKind = "cancel"
	ActionClose      ActionKind = "close"
	ActionSetStop    ActionKind = "set_stop"
	ActionSetTarget  ActionKind = "set_target"
	ActionNoOp       ActionKind = "no_op"
)

// entryKinds are the only action kinds that open new risk — everything
// else (cancel, close, stop/target adjustment, no-op) is exempt from the
// position-size/exposure/at-risk checks.
var entryKinds = map[ActionKind]bool{
	ActionMarketBuy:  true,
	ActionMarketSell: true,
	ActionLimitBuy:   true,
	ActionLimitSell:  true,
}

// Action is a proposed order or instruction awaiting validation.
type Action struct {
	Kind   ActionKind
	Symbol string

	// NotionalValue is quantity × price for the proposed order, used for
	// single-position-size and aggregate-exposure checks.
	NotionalValue money.Amount

	// RiskAmount is the money the proposed order places at risk (position
	// size at the stop distance), used for the max-loss-per-trade and
	// aggregate-at-risk checks.
	RiskAmount money.Amount
}

// Snapshot is the live portfolio state the proposed action is validated
// against. CurrentExposure and AggregateAtRisk must already reflect every
// open position but NOT the proposed action — Validate adds the proposed
// action's contribution before comparing against the limits, so two prior
// orders that together already consume 4% of at-risk correctly cause a
// third 2%-risk order to be rejected.
type Snapshot struct {
	TotalValue      money.Amount
	CashFree        money.Amount
	CurrentExposure money.Amount
	AggregateAtRisk money.Amount

	TradesInLastHour int
	TradesToday      int
}

// Limits is the frozen set of hard limits. Zero value is meaningless; use
// Default(). Runtime config may only tighten these (see Tighten).
type Limits struct {
	MaxSinglePositionPct  float64
	MaxAggregateExposure  float64
	MinCashReservePct     float64
	MaxLossPerTradePct    float64
	MaxAggregateAtRisk    float64
	MaxTradesPerHour      int
	MaxTradesPerDay       int
	AllowedSymbols        map[string]bool
	AllowedKinds          map[ActionKind]bool
}

// Default returns the guardrail table from the trading-core design: 10%
// single position, 50% aggregate exposure, 20% min cash reserve, 2% max
// loss per trade, 5% max aggregate at-risk, 10 trades/hour, 50 trades/day.
func Default(symbols []string) Limits {
	allowed := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		allowed[s] = true
	}
	return Limits{
		MaxSinglePositionPct: 0.10,
		MaxAggregateExposure: 0.50,
		MinCashReservePct:    0.20,
		MaxLossPerTradePct:   0.02,
		MaxAggregateAtRisk:   0.05,
		MaxTradesPerHour:     10,
		MaxTradesPerDay:      50,
		AllowedSymbols:       allowed,
		AllowedKinds: map[ActionKind]bool{
			ActionMarketBuy:  true,
			ActionMarketSell: true,
			ActionLimitBuy:   true,
			ActionLimitSell:  true,
			ActionCancel:     true,
			ActionClose:      true,
			ActionSetStop:    true,
			ActionSetTarget:  true,
			ActionNoOp:       true,
		},
	}
}

// Tighten returns a copy of l with every percentage/count limit replaced by
// the stricter of l's own value and override's, and the symbol/kind
// allow-lists intersected. It never relaxes a limit, satisfying the
// runtime-config-may-only-tighten invariant.
func (l Limits) Tighten(override Limits) Limits {
	out := l
	out.MaxSinglePositionPct = minPositive(l.MaxSinglePositionPct, override.MaxSinglePositionPct)
	out.MaxAggregateExposure = minPositive(l.MaxAggregateExposure, override.MaxAggregateExposure)
	out.MaxLossPerTradePct = minPositive(l.MaxLossPerTradePct, override.MaxLossPerTradePct)
	out.MaxAggregateAtRisk = minPositive(l.MaxAggregateAtRisk, override.MaxAggregateAtRisk)
	out.MinCashReservePct = maxPositive(l.MinCashReservePct, override.MinCashReservePct)
	out.MaxTradesPerHour = minIntPositive(l.MaxTradesPerHour, override.MaxTradesPerHour)
	out.MaxTradesPerDay = minIntPositive(l.MaxTradesPerDay, override.MaxTradesPerDay)

	if override.AllowedSymbols != nil {
		out.AllowedSymbols = intersectStr(l.AllowedSymbols, override.AllowedSymbols)
	}
	if override.AllowedKinds != nil {
		out.AllowedKinds = intersectKind(l.AllowedKinds, override.AllowedKinds)
	}
	return out
}

func minPositive(a, b float64) float64 {
	if b <= 0 {
		return a
	}
	if b < a {
		return b
	}
	return a
}

func maxPositive(a, b float64) float64 {
	if b <= 0 {
		return a
	}
	if b > a {
		return b
	}
	return a
}

func minIntPositive(a, b int) int {
	if b <= 0 {
		return a
	}
	if b < a {
		return b
	}
	return a
}

func intersectStr(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}

func intersectKind(a, b map[ActionKind]bool) map[ActionKind]bool {
	out := make(map[ActionKind]bool)
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}

// Decision is the outcome of Validate: either Allow or Deny with a reason.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow is the zero-reason approval decision.
var Allow = Decision{Allowed: true}

// Deny builds a rejection decision with the given reason.
func Deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// Validate is the single pure choke point every proposed action must pass
// through before reaching the executor. Aggregate exposure and aggregate
// at-risk are evaluated INCLUDING the proposed action's own contribution.
func Validate(action Action, snap Snapshot, limits Limits) Decision {
	if !limits.AllowedKinds[action.Kind] {
		return Deny("unknown or disallowed action kind")
	}

	if action.Kind == ActionCancel || action.Kind == ActionClose ||
		action.Kind == ActionSetStop || action.Kind == ActionSetTarget ||
		action.Kind == ActionNoOp {
		return Allow
	}

	if !limits.AllowedSymbols[action.Symbol] {
		return Deny("symbol not in allowed whitelist")
	}

	if limits.MaxTradesPerHour > 0 && snap.TradesInLastHour >= limits.MaxTradesPerHour {
		return Deny("max trades per hour exceeded")
	}
	if limits.MaxTradesPerDay > 0 && snap.TradesToday >= limits.MaxTradesPerDay {
		return Deny("max trades per day exceeded")
	}

	if !entryKinds[action.Kind] {
		return Allow
	}

	if snap.TotalValue.IsZero() {
		return Deny("portfolio total value is zero")
	}
	total := snap.TotalValue.Float64()

	singlePct := action.NotionalValue.Float64() / total
	if singlePct > limits.MaxSinglePositionPct {
		return Deny("exceeds max single position size")
	}

	projectedExposure := snap.CurrentExposure.Add(action.NotionalValue).Float64()
	if projectedExposure/total > limits.MaxAggregateExposure {
		return Deny("exceeds max aggregate exposure")
	}

	cashAfter := snap.CashFree.Sub(action.NotionalValue)
	if cashAfter.Float64()/total < limits.MinCashReservePct {
		return Deny("violates min cash reserve")
	}

	lossPct := action.RiskAmount.Float64() / total
	if lossPct > limits.MaxLossPerTradePct {
		return Deny("stop too far: exceeds max loss per trade")
	}

	projectedAtRisk := snap.AggregateAtRisk.Add(action.RiskAmount).Float64()
	if projectedAtRisk/total > limits.MaxAggregateAtRisk {
		return Deny("exceeds max aggregate at-risk")
	}

	return Allow
}
