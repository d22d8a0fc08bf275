// Package paperengine implements the paper matching engine: a virtual
// balance, deterministic slippage/commission fills, and stop/target
// triggering at the stop/target price rather than the triggering tick
// (conservative fill semantics). Grounded on the teacher's
// internal/paper.Simulator (Config/FillResult/Snapshot/ExecuteMarket/
// applySlippage), generalized from Polymarket's binary-outcome markets to
// ordinary long/short spot positions with entry, stop, and target.
package paperengine

import (
	"sort"
	"time"

	"github.com/keryxflow/keryxflow/internal/eventbus"
	"github.com/keryxflow/keryxflow/internal/money"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitStop    ExitReason = "stop"
	ExitTarget  ExitReason = "target"
	ExitSignal  ExitReason = "signal"
	ExitManual  ExitReason = "manual"
	ExitPanic   ExitReason = "panic"
)

// Config holds the simulator's economic parameters. Zero value is
// meaningless; use Default.
type Config struct {
	InitialBalance money.Amount
	SlippagePct    float64
	CommissionPct  float64
}

// Default returns initial balance 10 000, slippage 0.001, commission
// 0.001, matching the trading-core design's paper-engine defaults.
func Default() Config {
	return Config{
		InitialBalance: money.FromFloat(10000),
		SlippagePct:    0.001,
		CommissionPct:  0.001,
	}
}

// Position is one open paper position.
type Position struct {
	Symbol      string
	IsLong      bool
	Quantity    float64
	Entry       float64
	Stop        float64
	Target      float64
	OpenedAt    time.Time
	UnrealizedPnL money.Amount
}

// FillResult describes a completed entry fill.
type FillResult struct {
	Symbol    string
	FillPrice float64
	Quantity  float64
	Commission money.Amount
}

// ExitResult describes a completed exit.
type ExitResult struct {
	Symbol      string
	ExitPrice   float64
	Reason      ExitReason
	RealizedPnL money.Amount
}

// Order is a proposed entry.
type Order struct {
	Symbol   string
	IsLong   bool
	Quantity float64
	Stop     float64
	Target   float64
}

// Simulator owns the virtual balance and open positions. Matching is
// deterministic: the same tick sequence against the same order history
// produces identical fills every time, since every price transform here is
// a pure function of its inputs.
type Simulator struct {
	cfg       Config
	cashFree  money.Amount
	positions map[string]*Position
	bus       *eventbus.Bus
}

// New constructs a Simulator with the given config.
func New(cfg Config, bus *eventbus.Bus) *Simulator {
	return &Simulator{
		cfg:       cfg,
		cashFree:  cfg.InitialBalance,
		positions: make(map[string]*Position),
		bus:       bus,
	}
}

// CashFree returns the uncommitted balance.
func (s *Simulator) CashFree() money.Amount { return s.cashFree }

// Position returns the open position for symbol, or nil.
func (s *Simulator) Position(symbol string) *Position { return s.positions[symbol] }

// Positions returns a snapshot copy of every open position, keyed by
// symbol — safe for a caller to range over without racing Execute/Close.
func (s *Simulator) Positions() map[string]Position {
	out := make(map[string]Position, len(s.positions))
	for sym, pos := range s.positions {
		out[sym] = *pos
	}
	return out
}

// TotalValue returns free cash plus the notional value of every open
// position at its last-known price (entry plus unrealized PnL).
func (s *Simulator) TotalValue() money.Amount {
	total := s.cashFree
	for _, pos := range s.positions {
		notional := money.FromFloat(pos.Entry * pos.Quantity)
		total = total.Add(notional).Add(pos.UnrealizedPnL)
	}
	return total
}

// Execute fills a market order against quotedPrice, applying slippage and
// commission, and opens a position. If symbol already has an open
// position, Execute closes it first at quotedPrice (crediting proceeds and
// realized PnL) rather than silently overwriting it. Callers are expected
// to route opposing-direction signals through Close instead, but Execute
// never leaves a position's cash untracked.
func (s *Simulator) Execute(order Order, quotedPrice float64) FillResult {
	if s.positions[order.Symbol] != nil {
		s.closeAt(order.Symbol, quotedPrice, ExitSignal)
	}

	fillPrice := s.applySlippage(quotedPrice, order.IsLong)
	notional := fillPrice * order.Quantity
	commission := money.FromFloat(notional * s.cfg.CommissionPct)
	debit := money.FromFloat(notional).Add(commission)

	s.cashFree = s.cashFree.Sub(debit)
	s.positions[order.Symbol] = &Position{
		Symbol:   order.Symbol,
		IsLong:   order.IsLong,
		Quantity: order.Quantity,
		Entry:    fillPrice,
		Stop:     order.Stop,
		Target:   order.Target,
		OpenedAt: time.Now(),
	}

	s.emit(eventbus.KindOrderFilled, FillResult{Symbol: order.Symbol, FillPrice: fillPrice, Quantity: order.Quantity, Commission: commission})
	s.emit(eventbus.KindPositionOpened, *s.positions[order.Symbol])

	return FillResult{Symbol: order.Symbol, FillPrice: fillPrice, Quantity: order.Quantity, Commission: commission}
}

// applySlippage returns price·(1+slip) for a buy (opening long, or closing
// a short), price·(1−slip) for a sell (opening short, or closing a long).
// isBuy selects the side: buys slip up, sells slip down.
func (s *Simulator) applySlippage(price float64, isBuy bool) float64 {
	if isBuy {
		return price * (1 + s.cfg.SlippagePct)
	}
	return price * (1 - s.cfg.SlippagePct)
}

// OnPriceUpdate updates unrealized PnL for symbol's open position and
// triggers a stop/target exit if crossed. Stop and target exits fill at
// the stop/target price itself, not the triggering tick — the conservative
// assumption that a fast-moving tick could have traded through the level.
func (s *Simulator) OnPriceUpdate(symbol string, price float64) *ExitResult {
	pos := s.positions[symbol]
	if pos == nil {
		return nil
	}

	sideSign := 1.0
	if !pos.IsLong {
		sideSign = -1.0
	}
	pos.UnrealizedPnL = money.FromFloat((price - pos.Entry) * pos.Quantity * sideSign)

	if pos.IsLong {
		if pos.Stop != 0 && price <= pos.Stop {
			return s.closeAt(symbol, pos.Stop, ExitStop)
		}
		if pos.Target != 0 && price >= pos.Target {
			return s.closeAt(symbol, pos.Target, ExitTarget)
		}
	} else {
		if pos.Stop != 0 && price >= pos.Stop {
			return s.closeAt(symbol, pos.Stop, ExitStop)
		}
		if pos.Target != 0 && price <= pos.Target {
			return s.closeAt(symbol, pos.Target, ExitTarget)
		}
	}
	return nil
}

// Close closes symbol's position at currentPrice with slippage applied,
// for the given reason (manual, panic).
func (s *Simulator) Close(symbol string, currentPrice float64, reason ExitReason) *ExitResult {
	pos := s.positions[symbol]
	if pos == nil {
		return nil
	}
	fillPrice := s.applySlippage(currentPrice, !pos.IsLong)
	return s.closeAt(symbol, fillPrice, reason)
}

// CloseAll closes every open position in deterministic lexical symbol
// order, used for panic liquidation.
func (s *Simulator) CloseAll(prices map[string]float64, reason ExitReason) []ExitResult {
	symbols := make([]string, 0, len(s.positions))
	for sym := range s.positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	results := make([]ExitResult, 0, len(symbols))
	for _, sym := range symbols {
		price, ok := prices[sym]
		if !ok {
			price = s.positions[sym].Entry
		}
		if r := s.Close(sym, price, reason); r != nil {
			results = append(results, *r)
		}
	}
	return results
}

func (s *Simulator) closeAt(symbol string, exitPrice float64, reason ExitReason) *ExitResult {
	pos := s.positions[symbol]
	if pos == nil {
		return nil
	}

	sideSign := 1.0
	if !pos.IsLong {
		sideSign = -1.0
	}
	gross := (exitPrice - pos.Entry) * pos.Quantity * sideSign
	notional := exitPrice * pos.Quantity
	commission := notional * s.cfg.CommissionPct
	realized := money.FromFloat(gross - commission)

	// The entry debit comes back plus the side-signed PnL, so a short that
	// gains returns more cash than it locked, matching TotalValue.
	proceeds := money.FromFloat(pos.Entry*pos.Quantity + gross).Sub(money.FromFloat(commission))
	s.cashFree = s.cashFree.Add(proceeds)

	delete(s.positions, symbol)

	result := ExitResult{Symbol: symbol, ExitPrice: exitPrice, Reason: reason, RealizedPnL: realized}
	s.emit(eventbus.KindPositionClosed, result)
	return &result
}

func (s *Simulator) emit(kind eventbus.Kind, payload interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Category: eventbus.CategoryPosition, Kind: kind, Payload: payload})
}
