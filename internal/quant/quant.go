// Package quant implements the stateless numeric primitives shared by the
// signal aggregator and risk manager: position sizing, Kelly fraction,
// ATR-based stops, risk:reward, drawdown, and Sharpe ratio. Every function
// here is pure — no I/O, no shared state — mirroring the indicator style in
// the teacher's indicators.go (SMA/RSI/ZScore as plain float64 functions).
// These are the only places fixed-point money crosses into float64. The
// risk manager uses PositionSize's result as the order quantity as it is;
// the quantity is not rounded to a minimum lot size.
package quant

import "math"

// DefaultKellyCap is the safety ceiling applied to kelly_fraction.
const DefaultKellyCap = 0.25

// TradingDaysPerYear is the annualization factor used by Sharpe.
const TradingDaysPerYear = 252

// PositionSize returns (balance × riskPct) / |entry − stop|. Returns 0 if
// entry == stop (undefined risk distance).
func PositionSize(balance, riskPct, entry, stop float64) float64 {
	dist := math.Abs(entry - stop)
	if dist == 0 {
		return 0
	}
	return (balance * riskPct) / dist
}

// KellyFraction returns the standard Kelly criterion fraction, clamped to
// [0, cap]. Returns 0 if avgLoss <= 0 or winRate is outside (0,1).
func KellyFraction(winRate, avgWin, avgLoss, cap float64) float64 {
	if cap <= 0 {
		cap = DefaultKellyCap
	}
	if winRate <= 0 || winRate >= 1 || avgLoss <= 0 {
		return 0
	}
	lossRate := 1 - winRate
	b := avgWin / avgLoss
	if b == 0 {
		return 0
	}
	f := winRate - lossRate/b
	if f < 0 {
		return 0
	}
	if f > cap {
		return cap
	}
	return f
}

// ATRStop returns entry − mult·atr for a long position, entry + mult·atr
// for a short one.
func ATRStop(entry, atr, mult float64, isLong bool) float64 {
	offset := mult * atr
	if isLong {
		return entry - offset
	}
	return entry + offset
}

// RiskReward returns |target − entry| / |entry − stop|, or 0 if the risk
// leg has zero distance.
func RiskReward(entry, stop, target float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return 0
	}
	return math.Abs(target-entry) / risk
}

// Drawdown walks an equity curve and returns the current drawdown (from the
// running peak to the last point) and the maximum drawdown observed, both
// expressed as non-positive fractions of the peak.
func Drawdown(equityCurve []float64) (current, max float64) {
	if len(equityCurve) == 0 {
		return 0, 0
	}
	peak := equityCurve[0]
	for _, v := range equityCurve {
		if v > peak {
			peak = v
		}
		var dd float64
		if peak > 0 {
			dd = (v - peak) / peak
		}
		if dd < max {
			max = dd
		}
	}
	last := equityCurve[len(equityCurve)-1]
	if peak > 0 {
		current = (last - peak) / peak
	}
	return current, max
}

// Sharpe returns the annualized Sharpe ratio for a series of periodic
// returns against a risk-free rate rf, using the daily-returns convention
// (√252 annualization). Returns 0 for fewer than two samples or zero
// variance.
func Sharpe(returns []float64, rf float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	excess := make([]float64, n)
	var sum float64
	for i, r := range returns {
		excess[i] = r - rf
		sum += excess[i]
	}
	mean := sum / float64(n)

	var sq float64
	for _, e := range excess {
		d := e - mean
		sq += d * d
	}
	variance := sq / float64(n-1)
	if variance == 0 {
		return 0
	}
	stddev := math.Sqrt(variance)
	return (mean / stddev) * math.Sqrt(TradingDaysPerYear)
}
