package riskmanager

import (
	"testing"

	"github.com/keryxflow/keryxflow/internal/aggregator"
	"github.com/keryxflow/keryxflow/internal/analyzer"
	"github.com/keryxflow/keryxflow/internal/breaker"
	"github.com/keryxflow/keryxflow/internal/guardrails"
	"github.com/keryxflow/keryxflow/internal/money"
	"github.com/stretchr/testify/require"
)

func actionableSignal() aggregator.Signal {
	return aggregator.Signal{
		Symbol:     "BTC-USD",
		Direction:  analyzer.Bullish,
		Confidence: 0.9,
		Kind:       aggregator.KindStrong,
		Entry:      100,
		Stop:       98,
		Target:     104,
		Actionable: true,
	}
}

func freshState() PortfolioState {
	return PortfolioState{
		Balance:         money.FromFloat(100000),
		OpenPositions:   0,
		RiskPctPerTrade: 0.001, // 100 at risk over a 2-point stop: 50 units, a 5% position
		Snapshot: guardrails.Snapshot{
			TotalValue: money.FromFloat(100000),
			CashFree:   money.FromFloat(90000),
		},
	}
}

func TestEvaluateApprovesValidSignal(t *testing.T) {
	m := New(breaker.New(breaker.Default()), guardrails.Default([]string{"BTC-USD"}), DefaultSoftRules(), nil)
	d := m.Evaluate(actionableSignal(), freshState())
	require.True(t, d.Approved)
	require.Greater(t, d.Order.Quantity, 0.0)
}

func TestEvaluateRejectsMissingStop(t *testing.T) {
	m := New(breaker.New(breaker.Default()), guardrails.Default([]string{"BTC-USD"}), DefaultSoftRules(), nil)
	sig := actionableSignal()
	sig.Stop = sig.Entry
	d := m.Evaluate(sig, freshState())
	require.False(t, d.Approved)
	require.Equal(t, "stop loss required", d.Reason)
}

func TestEvaluateRejectsWhenBreakerTripped(t *testing.T) {
	br := breaker.New(breaker.Default())
	br.Trip("manual")
	m := New(br, guardrails.Default([]string{"BTC-USD"}), DefaultSoftRules(), nil)
	d := m.Evaluate(actionableSignal(), freshState())
	require.False(t, d.Approved)
}

func TestEvaluateRejectsLowRiskReward(t *testing.T) {
	m := New(breaker.New(breaker.Default()), guardrails.Default([]string{"BTC-USD"}), DefaultSoftRules(), nil)
	sig := actionableSignal()
	sig.Target = 100.5 // R:R well under 1.5
	d := m.Evaluate(sig, freshState())
	require.False(t, d.Approved)
	require.Equal(t, "risk:reward below minimum", d.Reason)
}

func TestEvaluateRejectsMaxConcurrentPositions(t *testing.T) {
	m := New(breaker.New(breaker.Default()), guardrails.Default([]string{"BTC-USD"}), DefaultSoftRules(), nil)
	state := freshState()
	state.OpenPositions = 5
	d := m.Evaluate(actionableSignal(), state)
	require.False(t, d.Approved)
	require.Equal(t, "max concurrent positions reached", d.Reason)
}

func TestEvaluateNotActionableRejects(t *testing.T) {
	m := New(breaker.New(breaker.Default()), guardrails.Default([]string{"BTC-USD"}), DefaultSoftRules(), nil)
	d := m.Evaluate(aggregator.Signal{Actionable: false}, freshState())
	require.False(t, d.Approved)
}

func TestEvaluateRejectsPyramidingIntoOpenPosition(t *testing.T) {
	m := New(breaker.New(breaker.Default()), guardrails.Default([]string{"BTC-USD"}), DefaultSoftRules(), nil)
	state := freshState()
	state.HasOpenPosition = true
	state.OpenQuantity = 10
	d := m.Evaluate(actionableSignal(), state)
	require.False(t, d.Approved)
	require.Equal(t, "symbol already has an open position (no pyramiding)", d.Reason)
}

func closeSignal() aggregator.Signal {
	return aggregator.Signal{
		Symbol:     "BTC-USD",
		Direction:  analyzer.Bearish,
		Confidence: 0.9,
		Kind:       aggregator.KindStrong,
		Action:     aggregator.ActionCloseLong,
		Entry:      100,
		Actionable: true,
	}
}

func TestEvaluateApprovesCloseSignalAgainstOpenPosition(t *testing.T) {
	m := New(breaker.New(breaker.Default()), guardrails.Default([]string{"BTC-USD"}), DefaultSoftRules(), nil)
	state := freshState()
	state.HasOpenPosition = true
	state.OpenQuantity = 10
	d := m.Evaluate(closeSignal(), state)
	require.True(t, d.Approved)
	require.Equal(t, guardrails.ActionClose, d.Order.Side)
	require.Equal(t, 10.0, d.Order.Quantity)
}

func TestEvaluateRejectsCloseSignalWithNoOpenPosition(t *testing.T) {
	m := New(breaker.New(breaker.Default()), guardrails.Default([]string{"BTC-USD"}), DefaultSoftRules(), nil)
	d := m.Evaluate(closeSignal(), freshState())
	require.False(t, d.Approved)
	require.Equal(t, "no open position to close", d.Reason)
}

func TestEvaluateCloseSignalSucceedsWhileBreakerTripped(t *testing.T) {
	br := breaker.New(breaker.Default())
	br.Trip("daily loss limit")
	m := New(br, guardrails.Default([]string{"BTC-USD"}), DefaultSoftRules(), nil)
	state := freshState()
	state.HasOpenPosition = true
	state.OpenQuantity = 10
	d := m.Evaluate(closeSignal(), state)
	require.True(t, d.Approved, "an explicit close must succeed even when the breaker has tripped entries off")
}
