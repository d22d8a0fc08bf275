package aggregator

import (
	"testing"

	"github.com/keryxflow/keryxflow/internal/analyzer"
	"github.com/stretchr/testify/require"
)

func strongBullish() analyzer.Analysis {
	return analyzer.Analysis{Direction: analyzer.Bullish, Confidence: 0.9, ATR: 2}
}

func TestCombineTechnicalOnly(t *testing.T) {
	s := Combine("BTC-USD", strongBullish(), nil, 100, nil, Default())
	require.Equal(t, "technical", s.Source)
	require.True(t, s.Actionable)
	require.Equal(t, KindStrong, s.Kind)
	require.Equal(t, ActionLong, s.Action)
	require.InDelta(t, 97, s.Stop, 1e-9)
	require.Greater(t, s.Target, s.Entry)
}

func TestCombineAgreeingLLMBoostsConfidence(t *testing.T) {
	llm := &LLMVerdict{Direction: analyzer.Bullish, Confidence: 0.8}
	s := Combine("BTC-USD", strongBullish(), llm, 100, nil, Default())
	require.Equal(t, "combined", s.Source)
	require.True(t, s.Actionable)
	require.InDelta(t, 0.6*0.9+0.4*0.8, s.Confidence, 1e-9)
}

func TestCombineDisagreeingLLMVetoes(t *testing.T) {
	llm := &LLMVerdict{Direction: analyzer.Bearish, Confidence: 0.8}
	s := Combine("BTC-USD", strongBullish(), llm, 100, nil, Default())
	require.False(t, s.Actionable)
	require.Equal(t, KindNone, s.Kind)
	require.Equal(t, ActionNone, s.Action)
}

func TestCombineWeakIsNotActionable(t *testing.T) {
	weak := analyzer.Analysis{Direction: analyzer.Bullish, Confidence: 0.35, ATR: 2}
	s := Combine("BTC-USD", weak, nil, 100, nil, Default())
	require.Equal(t, KindWeak, s.Kind)
	require.False(t, s.Actionable)
}

func TestCombineInsufficientATRIsNotActionable(t *testing.T) {
	noATR := analyzer.Analysis{Direction: analyzer.Bullish, Confidence: 0.9, ATR: 0}
	s := Combine("BTC-USD", noATR, nil, 100, nil, Default())
	require.False(t, s.Actionable)
}

func TestCombineNeutralIsNotActionable(t *testing.T) {
	neutral := analyzer.Analysis{Direction: analyzer.Neutral, Confidence: 0.9, ATR: 2}
	s := Combine("BTC-USD", neutral, nil, 100, nil, Default())
	require.False(t, s.Actionable)
}

func TestCombineOpposingSignalAgainstOpenLongEmitsCloseLong(t *testing.T) {
	bearish := analyzer.Analysis{Direction: analyzer.Bearish, Confidence: 0.9, ATR: 2}
	s := Combine("BTC-USD", bearish, nil, 100, &OpenPosition{IsLong: true}, Default())
	require.True(t, s.Actionable)
	require.Equal(t, ActionCloseLong, s.Action)
}

func TestCombineOpposingSignalAgainstOpenShortEmitsCloseShort(t *testing.T) {
	s := Combine("BTC-USD", strongBullish(), nil, 100, &OpenPosition{IsLong: false}, Default())
	require.True(t, s.Actionable)
	require.Equal(t, ActionCloseShort, s.Action)
}

func TestCombineSameDirectionAsOpenPositionIsNotActionable(t *testing.T) {
	s := Combine("BTC-USD", strongBullish(), nil, 100, &OpenPosition{IsLong: true}, Default())
	require.False(t, s.Actionable)
	require.Equal(t, ActionNone, s.Action)
}
