// Package aggregator fuses the technical analyzer's output with an
// optional LLM verdict into a tradeable Signal, attaching stop/target via
// the quant engine. Grounded on the teacher's internal/strategy/taker.go
// weighted-composite-score pattern (FlowWeight/ImbalanceWeight/
// ConvergenceWeight combined into one score gated by MinCompositeScore) —
// this package generalizes that fixed three-way blend into the
// technical/LLM two-source blend the trading core needs, with the LLM
// acting as a veto rather than just another weighted term, per the
// hybrid quant/AI design.
package aggregator

import (
	"github.com/keryxflow/keryxflow/internal/analyzer"
	"github.com/keryxflow/keryxflow/internal/quant"
)

// Kind is the confidence-tier classification of a combined signal.
type Kind string

const (
	KindStrong   Kind = "strong"
	KindModerate Kind = "moderate"
	KindWeak     Kind = "weak" // treated as NO_ACTION for entries
	KindNone     Kind = "none"
)

// Action is the directional action a Signal recommends: a fresh entry, a
// close against an already-open position, or nothing.
type Action string

const (
	ActionLong       Action = "LONG"
	ActionShort      Action = "SHORT"
	ActionCloseLong  Action = "CLOSE_LONG"
	ActionCloseShort Action = "CLOSE_SHORT"
	ActionNone       Action = "NO_ACTION"
)

// OpenPosition is the minimal existing-position context Combine needs to
// tell an entry from a close: which direction, if any, is already open on
// the symbol. A nil *OpenPosition means the symbol is flat.
type OpenPosition struct {
	IsLong bool
}

// LLMVerdict is the external collaborator's opinion, when available. See
// internal/llm for the port this is sourced from.
type LLMVerdict struct {
	Direction  analyzer.Direction
	Confidence float64
	Rationale  string
}

// Signal is the aggregator's output for one symbol.
type Signal struct {
	Symbol     string
	Direction  analyzer.Direction
	Confidence float64
	Kind       Kind
	Action     Action
	Source     string // "technical" or "combined"

	Entry  float64
	Stop   float64
	Target float64
	Actionable bool // false means NO_ACTION: insufficient data, veto, or below WEAK
}

// Config holds the fusion weights and entry construction parameters. Zero
// value is meaningless; use Default.
type Config struct {
	TechnicalWeight float64
	LLMWeight       float64

	StrongThreshold   float64
	ModerateThreshold float64
	WeakThreshold     float64

	ATRStopMult  float64
	RiskReward   float64
}

// Default returns the fusion weights and thresholds from the trading-core
// design: 0.6 technical / 0.4 LLM, STRONG≥0.7, MODERATE≥0.5, WEAK≥0.3,
// 1.5×ATR stop, 2.0 risk:reward target.
func Default() Config {
	return Config{
		TechnicalWeight:   0.6,
		LLMWeight:         0.4,
		StrongThreshold:   0.7,
		ModerateThreshold: 0.5,
		WeakThreshold:     0.3,
		ATRStopMult:       1.5,
		RiskReward:        2.0,
	}
}

// Combine produces a Signal for symbol given the analyzer output, the
// latest close price, an optional LLM verdict (nil if unavailable), and the
// symbol's existing open position, if any. When open is non-nil and the
// combined direction opposes it, Combine emits a CLOSE_LONG/CLOSE_SHORT
// signal instead of a fresh entry — the symbol already has a position, so
// there is nothing left to size or attach a stop/target to.
func Combine(symbol string, tech analyzer.Analysis, llm *LLMVerdict, latestClose float64, open *OpenPosition, cfg Config) Signal {
	var dir analyzer.Direction
	var confidence float64
	source := "technical"

	if llm == nil {
		dir = tech.Direction
		confidence = tech.Confidence
	} else {
		source = "combined"
		confidence = cfg.TechnicalWeight*tech.Confidence + cfg.LLMWeight*llm.Confidence

		if tech.Direction != analyzer.Neutral && llm.Direction != analyzer.Neutral && tech.Direction != llm.Direction {
			// Technical and LLM disagree on direction: the LLM vetoes.
			return Signal{Symbol: symbol, Source: source, Kind: KindNone, Action: ActionNone, Actionable: false}
		}
		dir = tech.Direction
		if dir == analyzer.Neutral {
			dir = llm.Direction
		}
	}

	kind := classify(confidence, cfg)
	if kind == KindNone || kind == KindWeak || dir == analyzer.Neutral {
		return Signal{Symbol: symbol, Direction: dir, Confidence: confidence, Kind: kind, Source: source, Action: ActionNone, Actionable: false}
	}

	isLong := dir == analyzer.Bullish

	if open != nil {
		if open.IsLong == isLong {
			// Same direction as the open position: no pyramiding. The
			// signal is not actionable, so it never reaches the risk
			// manager, whose soft rules also reject such an entry.
			return Signal{Symbol: symbol, Direction: dir, Confidence: confidence, Kind: kind, Source: source, Action: ActionNone, Actionable: false}
		}
		closeAction := ActionCloseLong
		if !open.IsLong {
			closeAction = ActionCloseShort
		}
		return Signal{
			Symbol:     symbol,
			Direction:  dir,
			Confidence: confidence,
			Kind:       kind,
			Source:     source,
			Action:     closeAction,
			Entry:      latestClose,
			Actionable: true,
		}
	}

	if tech.ATR <= 0 || latestClose <= 0 {
		return Signal{Symbol: symbol, Direction: dir, Confidence: confidence, Kind: kind, Source: source, Action: ActionNone, Actionable: false}
	}

	stop := quant.ATRStop(latestClose, tech.ATR, cfg.ATRStopMult, isLong)
	riskDist := latestClose - stop
	var target float64
	if isLong {
		target = latestClose + cfg.RiskReward*riskDist
	} else {
		target = latestClose - cfg.RiskReward*(-riskDist)
	}

	rr := quant.RiskReward(latestClose, stop, target)
	if rr <= 0 {
		return Signal{Symbol: symbol, Direction: dir, Confidence: confidence, Kind: kind, Source: source, Action: ActionNone, Actionable: false}
	}

	entryAction := ActionLong
	if !isLong {
		entryAction = ActionShort
	}

	return Signal{
		Symbol:     symbol,
		Direction:  dir,
		Confidence: confidence,
		Kind:       kind,
		Source:     source,
		Action:     entryAction,
		Entry:      latestClose,
		Stop:       stop,
		Target:     target,
		Actionable: true,
	}
}

func classify(confidence float64, cfg Config) Kind {
	switch {
	case confidence >= cfg.StrongThreshold:
		return KindStrong
	case confidence >= cfg.ModerateThreshold:
		return KindModerate
	case confidence >= cfg.WeakThreshold:
		return KindWeak
	default:
		return KindNone
	}
}
