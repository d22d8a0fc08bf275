// Package orchestrator owns the run loop: it subscribes to tick and
// candle-close events, drives ticks through the OHLCV buffer, trailing
// stop manager, and paper engine, and drives candle closes through
// Analyzer → Aggregator → (bounded LLM) → Risk Manager → Executor.
// Grounded directly on the teacher's internal/app.App.Run/HandleBookEvent:
// the same shape (a for-select loop over a context's Done channel plus
// periodic tickers, with a HandleX method doing the actual per-event
// work) generalized from Polymarket order-book events to price ticks and
// candle closes.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keryxflow/keryxflow/internal/aggregator"
	"github.com/keryxflow/keryxflow/internal/analyzer"
	"github.com/keryxflow/keryxflow/internal/eventbus"
	"github.com/keryxflow/keryxflow/internal/exchange"
	"github.com/keryxflow/keryxflow/internal/guardrails"
	"github.com/keryxflow/keryxflow/internal/llm"
	"github.com/keryxflow/keryxflow/internal/memory"
	"github.com/keryxflow/keryxflow/internal/money"
	"github.com/keryxflow/keryxflow/internal/news"
	"github.com/keryxflow/keryxflow/internal/ohlcv"
	"github.com/keryxflow/keryxflow/internal/paperengine"
	"github.com/keryxflow/keryxflow/internal/riskmanager"
	"github.com/keryxflow/keryxflow/internal/trailing"
)

// State is the engine's lifecycle state.
type State string

const (
	StateInitializing State = "initializing"
	StateRunning       State = "running"
	StatePaused        State = "paused"
	StateStopping      State = "stopping"
	StateStopped       State = "stopped"
)

// Config holds the symbols the engine trades and the per-subsystem
// defaults it wires together.
type Config struct {
	Symbols         []string
	AnalyzerConfig  analyzer.Config
	AggregatorConfig aggregator.Config
	RiskPctPerTrade float64
	LLMTimeout      time.Duration
}

// Engine wires every trading-core component into one run loop.
type Engine struct {
	cfg Config
	bus *eventbus.Bus

	buffers  map[string]*ohlcv.Buffer
	trailing *trailing.Manager
	paper    *paperengine.Simulator
	risk     *riskmanager.Manager
	memory   *memory.Memory
	llmColl  llm.Collaborator
	newsAgg  news.Aggregator

	mu         sync.Mutex
	state      State
	episodeIDs map[string]string // symbol -> open episode id, for exit linkage
}

// New constructs an Engine in the initializing state.
func New(cfg Config, bus *eventbus.Bus, paper *paperengine.Simulator, risk *riskmanager.Manager, trailMgr *trailing.Manager, mem *memory.Memory, llmColl llm.Collaborator) *Engine {
	e := &Engine{
		cfg:      cfg,
		bus:      bus,
		buffers:  make(map[string]*ohlcv.Buffer),
		trailing: trailMgr,
		paper:    paper,
		risk:     risk,
		memory:   mem,
		llmColl:  llmColl,
		state:    StateInitializing,
		episodeIDs: make(map[string]string),
	}
	for _, sym := range cfg.Symbols {
		e.buffers[sym] = ohlcv.New(sym, ohlcv.DefaultCapacity, bus)
	}
	return e
}

// newsLookback bounds how far back the news aggregator is asked to look
// when building LLM context for a candle close.
const newsLookback = 6 * time.Hour

// SetNewsAggregator wires an optional news.Aggregator into the engine's
// LLM context-building step. A nil aggregator (the default) means no news
// sentiment is appended to the LLM blob; news.RecentSafe already treats a
// nil Aggregator as "no items" so this is safe to leave unset.
func (e *Engine) SetNewsAggregator(a news.Aggregator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.newsAgg = a
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start transitions initializing/stopped → running and emits
// system_started. Idempotent: calling it while already running is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		return
	}
	e.state = StateRunning
	e.publish(eventbus.CategorySystem, eventbus.KindSystemStarted, nil)
}

// Pause halts new-entry processing but tick forwarding, trailing updates,
// and exit triggering continue. Idempotent.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StatePaused {
		return
	}
	e.state = StatePaused
	e.publish(eventbus.CategorySystem, eventbus.KindSystemPaused, nil)
}

// Resume transitions paused → running. Idempotent.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		return
	}
	e.state = StateRunning
	e.publish(eventbus.CategorySystem, eventbus.KindSystemResumed, nil)
}

// Panic closes every open position and transitions to paused. Idempotent:
// calling Panic twice leaves the system in the same state as calling it
// once (the second call finds no positions to close).
func (e *Engine) Panic(prices map[string]float64) []paperengine.ExitResult {
	e.mu.Lock()
	e.state = StatePaused
	e.mu.Unlock()

	results := e.paper.CloseAll(prices, paperengine.ExitPanic)
	for _, r := range results {
		e.trailing.Close(r.Symbol)
	}
	e.publish(eventbus.CategorySystem, eventbus.KindSystemPanic, results)
	return results
}

// Stop drains to stopping then stopped. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateStopped {
		return
	}
	e.state = StateStopping
	e.publish(eventbus.CategorySystem, eventbus.KindSystemStopped, nil)
	e.state = StateStopped
}

func (e *Engine) publish(cat eventbus.Category, kind eventbus.Kind, payload interface{}) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Category: cat, Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// HandleTick forwards one price tick to the OHLCV buffer, then the
// trailing stop manager, then the paper engine for mark-to-market and
// stop/target triggering. This runs regardless of pause state: only new
// entries are gated by pause, per §4.14.
func (e *Engine) HandleTick(symbol string, tick exchange.Tick, atr float64) {
	buf := e.buffers[symbol]
	if buf == nil {
		return
	}
	buf.OnTick(ohlcv.Tick{Timestamp: tick.Timestamp, Price: tick.Price, Volume: tick.Volume})

	if e.trailing.State(symbol) != nil {
		if newStop, changed := e.trailing.OnTick(symbol, tick.Price, atr); changed {
			if pos := e.paper.Position(symbol); pos != nil {
				pos.Stop = newStop
			}
		}
	}

	if exit := e.paper.OnPriceUpdate(symbol, tick.Price); exit != nil {
		e.trailing.Close(symbol)
		if e.memory != nil {
			if id, ok := e.episodeIDs[symbol]; ok {
				e.memory.RecordExit(context.Background(), id, exit.ExitPrice, exit.RealizedPnL.Float64(), string(exit.Reason))
				delete(e.episodeIDs, symbol)
			}
		}
	}
}

// HandleCandleClose runs the full decision pipeline for symbol: Analyzer →
// Aggregator → (bounded LLM) → Risk Manager → Executor. It is a no-op for
// new entries while paused.
func (e *Engine) HandleCandleClose(ctx context.Context, symbol string, balance money.Amount, snapshot guardrails.Snapshot, openPositions int) (riskmanager.Decision, bool) {
	if e.State() == StatePaused || e.State() == StateStopped {
		return riskmanager.Decision{}, false
	}

	buf := e.buffers[symbol]
	if buf == nil {
		return riskmanager.Decision{}, false
	}

	candles := toAnalyzerCandles(buf.Snapshot())
	analysis := analyzer.Analyze(candles, e.cfg.AnalyzerConfig)

	var verdict *aggregator.LLMVerdict
	if e.llmColl != nil {
		blob := fmt.Sprintf("symbol=%s direction=%v confidence=%.2f", symbol, analysis.Direction, analysis.Confidence)
		if items := news.RecentSafe(ctx, e.newsAgg, symbol, newsLookback); len(items) > 0 {
			blob += fmt.Sprintf(" news=%s", summarizeNews(items))
		}
		v, err := llm.AnalyzeBounded(ctx, e.llmColl, blob, e.cfg.LLMTimeout)
		if err == nil {
			verdict = &aggregator.LLMVerdict{Direction: v.Direction, Confidence: v.Confidence, Rationale: v.Rationale}
		}
	}

	latestClose := 0.0
	if len(candles) > 0 {
		latestClose = candles[len(candles)-1].Close
	}

	existing := e.paper.Position(symbol)
	var open *aggregator.OpenPosition
	if existing != nil {
		open = &aggregator.OpenPosition{IsLong: existing.IsLong}
	}

	sig := aggregator.Combine(symbol, analysis, verdict, latestClose, open, e.cfg.AggregatorConfig)
	if !sig.Actionable {
		return riskmanager.Decision{}, false
	}

	state := riskmanager.PortfolioState{
		Balance:         balance,
		OpenPositions:   openPositions,
		RiskPctPerTrade: e.cfg.RiskPctPerTrade,
		Snapshot:        snapshot,
	}
	if existing != nil {
		state.HasOpenPosition = true
		state.OpenQuantity = existing.Quantity
	}
	decision := e.risk.Evaluate(sig, state)
	if !decision.Approved {
		return decision, true
	}

	if decision.Order.Side == guardrails.ActionClose {
		exit := e.paper.Close(symbol, decision.Order.Entry, paperengine.ExitSignal)
		e.trailing.Close(symbol)
		if exit != nil && e.memory != nil {
			if id, ok := e.episodeIDs[symbol]; ok {
				e.memory.RecordExit(ctx, id, exit.ExitPrice, exit.RealizedPnL.Float64(), string(exit.Reason))
				delete(e.episodeIDs, symbol)
			}
		}
		return decision, true
	}

	isLong := decision.Order.Side == guardrails.ActionMarketBuy
	fill := e.paper.Execute(paperengine.Order{
		Symbol:   decision.Order.Symbol,
		IsLong:   isLong,
		Quantity: decision.Order.Quantity,
		Stop:     decision.Order.Stop,
		Target:   decision.Order.Target,
	}, decision.Order.Entry)

	e.trailing.Open(symbol, isLong, fill.FillPrice, decision.Order.Stop)

	if e.memory != nil {
		id := uuid.NewString()
		e.episodeIDs[symbol] = id
		e.memory.RecordEntry(ctx, memory.Episode{
			ID:         id,
			Symbol:     symbol,
			Timestamp:  time.Now(),
			Indicators: indicatorVector(analysis),
			EntryPrice: fill.FillPrice,
			Quantity:   fill.Quantity,
		})
	}

	return decision, true
}

func toAnalyzerCandles(candles []ohlcv.Candle) []analyzer.Candle {
	out := make([]analyzer.Candle, len(candles))
	for i, c := range candles {
		out[i] = analyzer.Candle{Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume}
	}
	return out
}

// summarizeNews reduces recent news items to a single average-sentiment
// figure plus a count, compact enough to append to an LLM context blob.
func summarizeNews(items []news.Item) string {
	var total float64
	for _, it := range items {
		total += it.Sentiment
	}
	return fmt.Sprintf("avg_sentiment=%.2f count=%d", total/float64(len(items)), len(items))
}

func indicatorVector(a analyzer.Analysis) []float64 {
	out := make([]float64, len(a.Indicators))
	for i, ind := range a.Indicators {
		out[i] = ind.Value
	}
	return out
}
