package guardrails

import (
	"testing"

	"github.com/keryxflow/keryxflow/internal/money"
	"github.com/stretchr/testify/require"
)

func baseSnapshot() Snapshot {
	return Snapshot{
		TotalValue:      money.FromFloat(100000),
		CashFree:        money.FromFloat(80000),
		CurrentExposure: money.FromFloat(0),
		AggregateAtRisk: money.FromFloat(0),
	}
}

func TestValidateAllowsWithinLimits(t *testing.T) {
	limits := Default([]string{"BTC-USD"})
	action := Action{
		Kind:          ActionMarketBuy,
		Symbol:        "BTC-USD",
		NotionalValue: money.FromFloat(5000),
		RiskAmount:    money.FromFloat(1000),
	}
	d := Validate(action, baseSnapshot(), limits)
	require.True(t, d.Allowed)
}

func TestValidateRejectsUnknownSymbol(t *testing.T) {
	limits := Default([]string{"BTC-USD"})
	action := Action{Kind: ActionMarketBuy, Symbol: "ETH-USD", NotionalValue: money.FromFloat(100), RiskAmount: money.FromFloat(10)}
	d := Validate(action, baseSnapshot(), limits)
	require.False(t, d.Allowed)
}

func TestValidateRejectsOversizedPosition(t *testing.T) {
	limits := Default([]string{"BTC-USD"})
	action := Action{Kind: ActionMarketBuy, Symbol: "BTC-USD", NotionalValue: money.FromFloat(20000), RiskAmount: money.FromFloat(100)}
	d := Validate(action, baseSnapshot(), limits)
	require.False(t, d.Allowed)
}

func TestValidateAggregateAtRiskAccumulates(t *testing.T) {
	limits := Default([]string{"BTC-USD"})
	snap := baseSnapshot()
	// Two prior 2%-risk trades already consumed 4% of the 5% ceiling.
	snap.AggregateAtRisk = money.FromFloat(4000)

	third := Action{
		Kind:          ActionMarketBuy,
		Symbol:        "BTC-USD",
		NotionalValue: money.FromFloat(1000),
		RiskAmount:    money.FromFloat(2000),
	}
	d := Validate(third, snap, limits)
	require.False(t, d.Allowed, "third 2%% trade should push aggregate at-risk past 5%%")
}

func TestValidateExitsAlwaysAllowed(t *testing.T) {
	limits := Default([]string{"BTC-USD"})
	snap := baseSnapshot()
	snap.AggregateAtRisk = money.FromFloat(999999)
	d := Validate(Action{Kind: ActionClose, Symbol: "BTC-USD"}, snap, limits)
	require.True(t, d.Allowed)
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	limits := Default([]string{"BTC-USD"})
	d := Validate(Action{Kind: ActionKind("teleport"), Symbol: "BTC-USD"}, baseSnapshot(), limits)
	require.False(t, d.Allowed)
}

func TestValidateRateLimits(t *testing.T) {
	limits := Default([]string{"BTC-USD"})
	snap := baseSnapshot()
	snap.TradesInLastHour = limits.MaxTradesPerHour
	action := Action{Kind: ActionMarketBuy, Symbol: "BTC-USD", NotionalValue: money.FromFloat(100), RiskAmount: money.FromFloat(10)}
	d := Validate(action, snap, limits)
	require.False(t, d.Allowed)
}

func TestTightenNeverRelaxes(t *testing.T) {
	base := Default([]string{"BTC-USD", "ETH-USD"})
	override := Limits{MaxSinglePositionPct: 0.20} // attempts to relax 10% -> 20%
	tightened := base.Tighten(override)
	require.Equal(t, base.MaxSinglePositionPct, tightened.MaxSinglePositionPct)

	stricter := Limits{MaxSinglePositionPct: 0.05}
	tightened2 := base.Tighten(stricter)
	require.Equal(t, 0.05, tightened2.MaxSinglePositionPct)
}
