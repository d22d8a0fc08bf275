// Package analyzer implements the pure technical analyzer: RSI, MACD,
// Bollinger Bands, OBV, ATR, and EMA alignment over a candle sequence, each
// reduced to a (direction, strength) pair and then combined into an overall
// (direction, strength, confidence). Grounded on chidi150c-coinbase's
// indicators.go (RSI via Wilder smoothing, SMA, ZScore as small pure
// float64 functions) for the indicator math, and on the teacher's
// strategy/taker.go composite-score weighting for the aggregation step.
// The analyzer touches no time, state, or I/O — every function here is a
// pure transform of its candle slice argument.
package analyzer

import "math"

// Direction is the polarity an indicator or the overall analysis leans.
type Direction int

const (
	Bearish Direction = -1
	Neutral Direction = 0
	Bullish Direction = 1
)

// Strength is the integer-weighted conviction behind a Direction.
type Strength int

const (
	StrengthNone     Strength = 0
	StrengthWeak     Strength = 1
	StrengthModerate Strength = 2
	StrengthStrong   Strength = 3
)

// Candle is one complete OHLCV bar. The analyzer never receives an
// in-progress candle.
type Candle struct {
	Open, High, Low, Close, Volume float64
}

// IndicatorResult is one indicator's verdict.
type IndicatorResult struct {
	Name      string
	Direction Direction
	Strength  Strength
	Value     float64 // the indicator's own scale, for display/logging
}

// Config holds the indicator periods. Zero value is meaningless; use
// Default.
type Config struct {
	RSIPeriod                        int
	MACDFast, MACDSlow, MACDSignal   int
	BollingerPeriod                  int
	BollingerStdDev                  float64
	OBVSlopeWindow                   int
	ATRPeriod                        int
	EMAPeriods                       []int
}

// Default returns the indicator defaults from the trading-core design:
// RSI 14, MACD 12/26/9, Bollinger 20/2, OBV slope window 10, ATR 14,
// EMA 9/21/50/200.
func Default() Config {
	return Config{
		RSIPeriod:       14,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		BollingerPeriod: 20,
		BollingerStdDev: 2,
		OBVSlopeWindow:  10,
		ATRPeriod:       14,
		EMAPeriods:      []int{9, 21, 50, 200},
	}
}

// Analysis is the aggregated output over one candle sequence.
type Analysis struct {
	Indicators []IndicatorResult
	Direction  Direction
	Strength   Strength
	Confidence float64 // in [0,1]
	ATR        float64 // last ATR value, needed downstream for stop sizing
}

// Analyze runs every configured indicator over candles (oldest first) and
// aggregates the results. Returns a zero Analysis with Direction=Neutral
// and Confidence=0 if there is not enough history for any computation.
func Analyze(candles []Candle, cfg Config) Analysis {
	var results []IndicatorResult

	if r, ok := rsi(candles, cfg.RSIPeriod); ok {
		results = append(results, r)
	}
	if r, ok := macd(candles, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal); ok {
		results = append(results, r)
	}
	if r, ok := bollinger(candles, cfg.BollingerPeriod, cfg.BollingerStdDev); ok {
		results = append(results, r)
	}
	if r, ok := obv(candles, cfg.OBVSlopeWindow); ok {
		results = append(results, r)
	}
	if r, ok := emaAlignment(candles, cfg.EMAPeriods); ok {
		results = append(results, r)
	}

	atrVal, _ := atr(candles, cfg.ATRPeriod)

	dir, strength, confidence := aggregate(results)
	return Analysis{
		Indicators: results,
		Direction:  dir,
		Strength:   strength,
		Confidence: confidence,
		ATR:        atrVal,
	}
}

// aggregate combines per-indicator (direction, strength) pairs using an
// integer weight per strength (none=0, weak=1, moderate=2, strong=3).
// Confidence = sum(weight × polarity) / sum(max_weight), then maps the sign
// of the weighted sum to an overall direction and the largest strength
// among agreeing indicators to an overall strength.
func aggregate(results []IndicatorResult) (Direction, Strength, float64) {
	if len(results) == 0 {
		return Neutral, StrengthNone, 0
	}

	var weightedSum float64
	maxWeight := float64(len(results)) * float64(StrengthStrong)

	for _, r := range results {
		weightedSum += float64(r.Strength) * float64(r.Direction)
	}

	confidence := 0.0
	if maxWeight > 0 {
		confidence = math.Abs(weightedSum) / maxWeight
	}

	dir := Neutral
	switch {
	case weightedSum > 0:
		dir = Bullish
	case weightedSum < 0:
		dir = Bearish
	}

	strength := StrengthNone
	for _, r := range results {
		if r.Direction == dir && r.Strength > strength {
			strength = r.Strength
		}
	}

	return dir, strength, confidence
}

func closes(c []Candle) []float64 {
	out := make([]float64, len(c))
	for i, x := range c {
		out[i] = x.Close
	}
	return out
}

// rsi computes Wilder-smoothed RSI over the period and classifies it:
// <20 or >80 is strong, <30 or >70 is the plain oversold/overbought
// threshold used for direction.
func rsi(candles []Candle, period int) (IndicatorResult, bool) {
	if period <= 0 || len(candles) < period+1 {
		return IndicatorResult{}, false
	}
	c := closes(candles)

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		delta := c[i] - c[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)

	for i := period + 1; i < len(c); i++ {
		delta := c[i] - c[i-1]
		var gain, loss float64
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	var rsiVal float64
	if avgLoss == 0 {
		rsiVal = 100
	} else {
		rs := avgGain / avgLoss
		rsiVal = 100 - (100 / (1 + rs))
	}

	dir := Neutral
	strength := StrengthNone
	switch {
	case rsiVal < 20:
		dir, strength = Bullish, StrengthStrong
	case rsiVal < 30:
		dir, strength = Bullish, StrengthModerate
	case rsiVal > 80:
		dir, strength = Bearish, StrengthStrong
	case rsiVal > 70:
		dir, strength = Bearish, StrengthModerate
	}

	return IndicatorResult{Name: "rsi", Direction: dir, Strength: strength, Value: rsiVal}, true
}

func ema(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, len(values))
	k := 2.0 / float64(period+1)

	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	seed := sum / float64(period)
	out[period-1] = seed
	for i := period; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

func macd(candles []Candle, fast, slow, signal int) (IndicatorResult, bool) {
	c := closes(candles)
	if len(c) < slow+signal {
		return IndicatorResult{}, false
	}

	fastEMA := ema(c, fast)
	slowEMA := ema(c, slow)
	if fastEMA == nil || slowEMA == nil {
		return IndicatorResult{}, false
	}

	start := slow - 1
	macdLine := make([]float64, len(c)-start)
	for i := start; i < len(c); i++ {
		macdLine[i-start] = fastEMA[i] - slowEMA[i]
	}

	signalLine := ema(macdLine, signal)
	if signalLine == nil || len(signalLine) < 2 {
		return IndicatorResult{}, false
	}

	prevHist := macdLine[len(macdLine)-2] - signalLine[len(signalLine)-2]
	nowHist := macdLine[len(macdLine)-1] - signalLine[len(signalLine)-1]

	dir := Neutral
	if prevHist <= 0 && nowHist > 0 {
		dir = Bullish
	} else if prevHist >= 0 && nowHist < 0 {
		dir = Bearish
	} else if nowHist > 0 {
		dir = Bullish
	} else if nowHist < 0 {
		dir = Bearish
	}

	mag := math.Abs(nowHist)
	strength := StrengthWeak
	switch {
	case mag > 2*math.Abs(prevHist) && prevHist != 0:
		strength = StrengthStrong
	case mag > math.Abs(prevHist):
		strength = StrengthModerate
	}
	if dir == Neutral {
		strength = StrengthNone
	}

	return IndicatorResult{Name: "macd", Direction: dir, Strength: strength, Value: nowHist}, true
}

func bollinger(candles []Candle, period int, stdDev float64) (IndicatorResult, bool) {
	if period <= 0 || len(candles) < period {
		return IndicatorResult{}, false
	}
	c := closes(candles)
	window := c[len(c)-period:]

	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(period)

	var sq float64
	for _, v := range window {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(period))

	upper := mean + stdDev*std
	lower := mean - stdDev*std
	price := c[len(c)-1]

	if upper == lower {
		return IndicatorResult{Name: "bollinger", Direction: Neutral, Strength: StrengthNone, Value: 0.5}, true
	}

	pos := (price - lower) / (upper - lower)

	dir := Neutral
	strength := StrengthNone
	switch {
	case pos < 0.05:
		dir, strength = Bullish, StrengthStrong
	case pos < 0.3:
		dir, strength = Bullish, StrengthModerate
	case pos < 0.45:
		dir, strength = Bullish, StrengthWeak
	case pos > 0.95:
		dir, strength = Bearish, StrengthStrong
	case pos > 0.7:
		dir, strength = Bearish, StrengthModerate
	case pos > 0.55:
		dir, strength = Bearish, StrengthWeak
	}

	return IndicatorResult{Name: "bollinger", Direction: dir, Strength: strength, Value: pos}, true
}

func obv(candles []Candle, slopeWindow int) (IndicatorResult, bool) {
	if len(candles) < 2 {
		return IndicatorResult{}, false
	}

	series := make([]float64, len(candles))
	var cumulative float64
	for i := 1; i < len(candles); i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			cumulative += candles[i].Volume
		case candles[i].Close < candles[i-1].Close:
			cumulative -= candles[i].Volume
		}
		series[i] = cumulative
	}

	n := slopeWindow
	if n <= 1 || len(series) < n {
		n = len(series)
	}
	if n < 2 {
		return IndicatorResult{}, false
	}
	recent := series[len(series)-n:]
	slope := (recent[len(recent)-1] - recent[0]) / float64(len(recent)-1)

	scale := math.Abs(recent[len(recent)-1])
	if scale == 0 {
		scale = 1
	}
	normalized := slope / scale

	dir := Neutral
	strength := StrengthNone
	switch {
	case normalized > 0.05:
		dir, strength = Bullish, StrengthStrong
	case normalized > 0.01:
		dir, strength = Bullish, StrengthModerate
	case normalized > 0.001:
		dir, strength = Bullish, StrengthWeak
	case normalized < -0.05:
		dir, strength = Bearish, StrengthStrong
	case normalized < -0.01:
		dir, strength = Bearish, StrengthModerate
	case normalized < -0.001:
		dir, strength = Bearish, StrengthWeak
	}

	return IndicatorResult{Name: "obv", Direction: dir, Strength: strength, Value: slope}, true
}

// atr computes Wilder's average true range over period.
func atr(candles []Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}

	trueRanges := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		h, l, pc := candles[i].High, candles[i].Low, candles[i-1].Close
		tr := math.Max(h-l, math.Max(math.Abs(h-pc), math.Abs(l-pc)))
		trueRanges = append(trueRanges, tr)
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += trueRanges[i]
	}
	avg := sum / float64(period)
	for i := period; i < len(trueRanges); i++ {
		avg = (avg*float64(period-1) + trueRanges[i]) / float64(period)
	}
	return avg, true
}

func emaAlignment(candles []Candle, periods []int) (IndicatorResult, bool) {
	if len(periods) == 0 {
		return IndicatorResult{}, false
	}
	c := closes(candles)

	sorted := append([]int(nil), periods...)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j] < sorted[i] {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	values := make([]float64, len(sorted))
	for i, p := range sorted {
		series := ema(c, p)
		if series == nil {
			return IndicatorResult{}, false
		}
		values[i] = series[len(series)-1]
	}

	price := c[len(c)-1]

	allAboveInOrder := price > values[0]
	allBelowInOrder := price < values[0]
	for i := 0; i < len(values)-1; i++ {
		if values[i] <= values[i+1] {
			allAboveInOrder = false
		}
		if values[i] >= values[i+1] {
			allBelowInOrder = false
		}
	}

	bullishCount := 0
	bearishCount := 0
	for i := 0; i < len(values)-1; i++ {
		if values[i] > values[i+1] {
			bullishCount++
		} else if values[i] < values[i+1] {
			bearishCount++
		}
	}

	switch {
	case allAboveInOrder:
		return IndicatorResult{Name: "ema_alignment", Direction: Bullish, Strength: StrengthStrong, Value: 1}, true
	case allBelowInOrder:
		return IndicatorResult{Name: "ema_alignment", Direction: Bearish, Strength: StrengthStrong, Value: -1}, true
	case bullishCount > bearishCount:
		strength := StrengthWeak
		if bullishCount >= len(values)-1 {
			strength = StrengthModerate
		}
		return IndicatorResult{Name: "ema_alignment", Direction: Bullish, Strength: strength, Value: float64(bullishCount)}, true
	case bearishCount > bullishCount:
		strength := StrengthWeak
		if bearishCount >= len(values)-1 {
			strength = StrengthModerate
		}
		return IndicatorResult{Name: "ema_alignment", Direction: Bearish, Strength: strength, Value: float64(bearishCount)}, true
	default:
		return IndicatorResult{Name: "ema_alignment", Direction: Neutral, Strength: StrengthNone, Value: 0}, true
	}
}
