package main

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/keryxflow/keryxflow/internal/api"
	"github.com/keryxflow/keryxflow/internal/breaker"
	"github.com/keryxflow/keryxflow/internal/eventbus"
	"github.com/keryxflow/keryxflow/internal/guardrails"
	"github.com/keryxflow/keryxflow/internal/money"
	"github.com/keryxflow/keryxflow/internal/orchestrator"
	"github.com/keryxflow/keryxflow/internal/paperengine"
	"github.com/keryxflow/keryxflow/internal/quant"
	"github.com/keryxflow/keryxflow/internal/store"
	"github.com/keryxflow/keryxflow/internal/telemetry"
)

// riskBookkeeper tracks the running totals the circuit breaker and
// guardrails need but that no single subsystem owns on its own: the
// equity curve (for drawdown), recent loss timestamps (for the
// rapid-loss trip), and trade-rate counters (for the guardrail rate
// limits). It recomputes breaker.Inputs on every closed position and
// feeds the result straight into the breaker, mirroring the teacher's
// own risk.Manager, which keeps its own running daily P&L rather than
// asking another subsystem for it.
type riskBookkeeper struct {
	mu sync.Mutex

	equityCurve []float64
	dayStart    float64
	weekStart   float64
	lossTimes   []time.Time
	consecutive int

	approvalTimes []time.Time
}

func newRiskBookkeeper(initialBalance float64) *riskBookkeeper {
	return &riskBookkeeper{
		equityCurve: []float64{initialBalance},
		dayStart:    initialBalance,
		weekStart:   initialBalance,
	}
}

// observeEquity appends the latest mark-to-market equity to the curve and
// returns the breaker.Inputs computed from it. Called once per closed
// position, not per Status read, so the equity curve
// used for drawdown reflects the engine's own cadence rather than however
// often the API happens to be polled.
func (r *riskBookkeeper) observeEquity(now time.Time, equity float64) breaker.Inputs {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.equityCurve = append(r.equityCurve, equity)
	return r.inputsLocked()
}

// currentInputs returns breaker.Inputs from the bookkeeper's last
// observation, without appending a new equity point — used by read-only
// callers such as the status endpoint.
func (r *riskBookkeeper) currentInputs() breaker.Inputs {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inputsLocked()
}

func (r *riskBookkeeper) inputsLocked() breaker.Inputs {
	_, maxDD := quant.Drawdown(r.equityCurve)
	equity := r.equityCurve[len(r.equityCurve)-1]

	dailyLossPct := 0.0
	if r.dayStart > 0 && equity < r.dayStart {
		dailyLossPct = (r.dayStart - equity) / r.dayStart
	}
	weeklyLossPct := 0.0
	if r.weekStart > 0 && equity < r.weekStart {
		weeklyLossPct = (r.weekStart - equity) / r.weekStart
	}

	return breaker.Inputs{
		DailyLossPct:      -dailyLossPct,
		WeeklyLossPct:     -weeklyLossPct,
		TotalDrawdownPct:  maxDD,
		ConsecutiveLosses: r.consecutive,
		LossTimestamps:    append([]time.Time(nil), r.lossTimes...),
	}
}

// resetDay and resetWeek rebase the loss-pct watermarks; called by the
// main loop's daily and weekly tickers.
func (r *riskBookkeeper) resetDay(equity float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dayStart = equity
}

func (r *riskBookkeeper) resetWeek(equity float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.weekStart = equity
}

// recordTradeResult updates the consecutive-loss counter and the
// rapid-loss timestamp window.
func (r *riskBookkeeper) recordTradeResult(now time.Time, realizedPnL float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if realizedPnL < 0 {
		r.consecutive++
		r.lossTimes = append(r.lossTimes, now)
		cutoff := now.Add(-1 * time.Hour)
		kept := r.lossTimes[:0]
		for _, t := range r.lossTimes {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		r.lossTimes = kept
	} else if realizedPnL > 0 {
		r.consecutive = 0
	}
}

// recordApproval tracks an approved order's timestamp for the
// trades-in-last-hour / trades-today guardrail counters.
func (r *riskBookkeeper) recordApproval(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.approvalTimes = append(r.approvalTimes, now)
}

func (r *riskBookkeeper) tradeCounts(now time.Time) (lastHour, today int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hourCutoff := now.Add(-1 * time.Hour)
	dayCutoff := now.Truncate(24 * time.Hour)
	for _, t := range r.approvalTimes {
		if t.After(hourCutoff) {
			lastHour++
		}
		if !t.Before(dayCutoff) {
			today++
		}
	}
	return lastHour, today
}

// engineBackend wires the orchestrator, paper engine, breaker, and store
// into the api.Backend port the REST/WebSocket surface consumes.
type engineBackend struct {
	engine *orchestrator.Engine
	sim    *paperengine.Simulator
	brk    *breaker.Breaker
	store  *store.Store
	book   *riskBookkeeper
}

var _ api.Backend = (*engineBackend)(nil)

func (b *engineBackend) Status(ctx context.Context) api.StatusSnapshot {
	in := b.book.currentInputs()
	return api.StatusSnapshot{
		State:             string(b.engine.State()),
		BreakerState:      string(b.brk.State()),
		ConsecutiveLosses: in.ConsecutiveLosses,
		DailyLossPct:      in.DailyLossPct,
		WeeklyLossPct:     in.WeeklyLossPct,
		TotalDrawdownPct:  in.TotalDrawdownPct,
		OpenPositions:     len(b.sim.Positions()),
	}
}

func (b *engineBackend) Positions(ctx context.Context) []api.PositionView {
	positions := b.sim.Positions()
	symbols := make([]string, 0, len(positions))
	for sym := range positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	out := make([]api.PositionView, 0, len(symbols))
	for _, sym := range symbols {
		p := positions[sym]
		out = append(out, api.PositionView{
			Symbol:        p.Symbol,
			IsLong:        p.IsLong,
			Quantity:      p.Quantity,
			Entry:         p.Entry,
			Stop:          p.Stop,
			Target:        p.Target,
			UnrealizedPnL: p.UnrealizedPnL.Float64(),
		})
	}
	return out
}

func (b *engineBackend) Trades(ctx context.Context, limit int) []api.TradeView {
	records, err := b.store.RecentTrades(ctx, limit)
	if err != nil {
		return nil
	}
	out := make([]api.TradeView, 0, len(records))
	for _, t := range records {
		out = append(out, api.TradeView{
			Symbol:      t.Symbol,
			Side:        t.Side,
			Quantity:    t.Quantity,
			EntryPrice:  t.EntryPrice,
			ExitPrice:   t.ExitPrice,
			ExitReason:  t.ExitReason,
			RealizedPnL: t.RealizedPnL.Float64(),
			OpenedAt:    t.OpenedAt,
			ClosedAt:    t.ClosedAt,
		})
	}
	return out
}

func (b *engineBackend) Balance(ctx context.Context) api.BalanceView {
	total := b.sim.TotalValue().Float64()
	free := b.sim.CashFree().Float64()
	return api.BalanceView{Total: total, Free: free, Locked: total - free}
}

func (b *engineBackend) Panic(ctx context.Context) error {
	prices := make(map[string]float64)
	for sym, p := range b.sim.Positions() {
		prices[sym] = p.Entry + p.UnrealizedPnL.Float64()/maxQty(p.Quantity)
	}
	b.engine.Panic(prices)
	return nil
}

func (b *engineBackend) TogglePause(ctx context.Context) (bool, error) {
	if b.engine.State() == orchestrator.StatePaused {
		b.engine.Resume()
		return false, nil
	}
	b.engine.Pause()
	return true, nil
}

func maxQty(q float64) float64 {
	if q == 0 {
		return 1
	}
	return q
}

// guardrailSnapshot builds a guardrails.Snapshot from the paper engine's
// current book plus the bookkeeper's rate counters.
func guardrailSnapshot(sim *paperengine.Simulator, book *riskBookkeeper, now time.Time) guardrails.Snapshot {
	positions := sim.Positions()
	exposure := 0.0
	atRisk := 0.0
	for _, p := range positions {
		exposure += p.Entry * p.Quantity
		if p.Stop != 0 {
			atRisk += absFloat(p.Entry-p.Stop) * p.Quantity
		}
	}
	lastHour, today := book.tradeCounts(now)
	return guardrails.Snapshot{
		TotalValue:       sim.TotalValue(),
		CashFree:         sim.CashFree(),
		CurrentExposure:  money.FromFloat(exposure),
		AggregateAtRisk:  money.FromFloat(atRisk),
		TradesInLastHour: lastHour,
		TradesToday:      today,
	}
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func reportTelemetry(bus *eventbus.Bus, sim *paperengine.Simulator, brk *breaker.Breaker) {
	telemetry.SetBreakerState(string(brk.State()))
	telemetry.SetOpenPositions(len(sim.Positions()))
	telemetry.SetEquity(sim.TotalValue().Float64())
	telemetry.SetQueueDepth(bus.QueueDepth())
}
