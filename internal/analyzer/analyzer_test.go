package analyzer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func uptrend(n int, start float64) []Candle {
	candles := make([]Candle, n)
	price := start
	for i := 0; i < n; i++ {
		open := price
		price += 1.0
		candles[i] = Candle{Open: open, High: price + 0.5, Low: open - 0.5, Close: price, Volume: 100 + float64(i)}
	}
	return candles
}

func downtrend(n int, start float64) []Candle {
	candles := make([]Candle, n)
	price := start
	for i := 0; i < n; i++ {
		open := price
		price -= 1.0
		candles[i] = Candle{Open: open, High: open + 0.5, Low: price - 0.5, Close: price, Volume: 100 + float64(i)}
	}
	return candles
}

func TestAnalyzeInsufficientHistoryIsNeutral(t *testing.T) {
	a := Analyze([]Candle{{Close: 100}}, Default())
	require.Equal(t, Neutral, a.Direction)
	require.Equal(t, 0.0, a.Confidence)
}

// A steady linear climb is overextended: RSI at 100 and Bollinger %b near
// 0.91 read bearish and outweigh the bullish EMA alignment and OBV slope.
func TestAnalyzeLinearUptrendReadsOverboughtBearish(t *testing.T) {
	candles := uptrend(300, 100)
	a := Analyze(candles, Default())
	require.Equal(t, Bearish, a.Direction)
	require.Greater(t, a.Confidence, 0.0)
	require.Greater(t, a.ATR, 0.0)
}

// The mirror case: a steady linear decline reads oversold, so the
// mean-reversion indicators outweigh the bearish EMA alignment and OBV.
func TestAnalyzeLinearDowntrendReadsOversoldBullish(t *testing.T) {
	candles := downtrend(300, 1000)
	a := Analyze(candles, Default())
	require.Equal(t, Bullish, a.Direction)
	require.Greater(t, a.Confidence, 0.0)
}

func TestRSIExtremesAreStrong(t *testing.T) {
	candles := uptrend(30, 100)
	r, ok := rsi(candles, 14)
	require.True(t, ok)
	require.Equal(t, Bearish, r.Direction) // RSI 100: overbought
	require.Equal(t, StrengthStrong, r.Strength)
}

func TestBollingerMiddleIsNeutral(t *testing.T) {
	flat := make([]Candle, 25)
	for i := range flat {
		flat[i] = Candle{Open: 100, High: 100.1, Low: 99.9, Close: 100, Volume: 10}
	}
	r, ok := bollinger(flat, 20, 2)
	require.True(t, ok)
	require.Equal(t, Neutral, r.Direction)
}

func TestEMAAlignmentInsufficientHistory(t *testing.T) {
	_, ok := emaAlignment(uptrend(5, 100), Default().EMAPeriods)
	require.False(t, ok)
}

func TestAggregateEmptyIsNeutral(t *testing.T) {
	dir, strength, conf := aggregate(nil)
	require.Equal(t, Neutral, dir)
	require.Equal(t, StrengthNone, strength)
	require.Equal(t, 0.0, conf)
}
