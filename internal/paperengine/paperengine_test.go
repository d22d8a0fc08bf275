package paperengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExecuteAppliesSlippageAndCommission(t *testing.T) {
	s := New(Default(), nil)
	fill := s.Execute(Order{Symbol: "BTC-USD", IsLong: true, Quantity: 0.1, Stop: 59000, Target: 62000}, 60000)

	require.InDelta(t, 60060.0, fill.FillPrice, 1e-6)

	expectedCash := 10000.0 - 0.1*60060*1.001
	require.InDelta(t, expectedCash, s.CashFree().Float64(), 1e-3)

	pos := s.Position("BTC-USD")
	require.NotNil(t, pos)
	require.InDelta(t, 60060.0, pos.Entry, 1e-6)
}

func TestStopTriggersAtStopPriceNotTickPrice(t *testing.T) {
	s := New(Default(), nil)
	s.Execute(Order{Symbol: "BTC-USD", IsLong: true, Quantity: 1, Stop: 59000, Target: 62000}, 60000)

	result := s.OnPriceUpdate("BTC-USD", 58000) // gapped through the stop
	require.NotNil(t, result)
	require.Equal(t, ExitStop, result.Reason)
	require.Equal(t, 59000.0, result.ExitPrice)
	require.Nil(t, s.Position("BTC-USD"))
}

func TestTargetTriggersAtTargetPrice(t *testing.T) {
	s := New(Default(), nil)
	s.Execute(Order{Symbol: "BTC-USD", IsLong: true, Quantity: 1, Stop: 59000, Target: 61000}, 60000)

	result := s.OnPriceUpdate("BTC-USD", 63000)
	require.NotNil(t, result)
	require.Equal(t, ExitTarget, result.Reason)
	require.Equal(t, 61000.0, result.ExitPrice)
}

func TestShortPositionStopAndTarget(t *testing.T) {
	s := New(Default(), nil)
	s.Execute(Order{Symbol: "ETH-USD", IsLong: false, Quantity: 1, Stop: 110, Target: 90}, 100)

	require.Nil(t, s.OnPriceUpdate("ETH-USD", 105))
	result := s.OnPriceUpdate("ETH-USD", 115)
	require.NotNil(t, result)
	require.Equal(t, ExitStop, result.Reason)
	require.Equal(t, 110.0, result.ExitPrice)
}

func TestCloseAllDeterministicOrder(t *testing.T) {
	s := New(Default(), nil)
	s.Execute(Order{Symbol: "ETH-USD", IsLong: true, Quantity: 1, Stop: 1, Target: 1000000}, 100)
	s.Execute(Order{Symbol: "BTC-USD", IsLong: true, Quantity: 1, Stop: 1, Target: 1000000}, 50000)

	results := s.CloseAll(map[string]float64{"BTC-USD": 51000, "ETH-USD": 110}, ExitPanic)
	require.Len(t, results, 2)
	require.Equal(t, "BTC-USD", results[0].Symbol)
	require.Equal(t, "ETH-USD", results[1].Symbol)
	require.Nil(t, s.Position("BTC-USD"))
	require.Nil(t, s.Position("ETH-USD"))
}

func TestPositionsSnapshotIsACopy(t *testing.T) {
	s := New(Default(), nil)
	s.Execute(Order{Symbol: "BTC-USD", IsLong: true, Quantity: 0.1, Stop: 1, Target: 1000000}, 60000)

	snap := s.Positions()
	require.Len(t, snap, 1)
	entry := snap["BTC-USD"]
	entry.Quantity = 999 // mutating the copy must not affect the simulator
	require.Equal(t, 0.1, s.Position("BTC-USD").Quantity)
}

func TestTotalValueIncludesOpenPositionNotional(t *testing.T) {
	s := New(Default(), nil)
	fill := s.Execute(Order{Symbol: "BTC-USD", IsLong: true, Quantity: 0.1, Stop: 1, Target: 1000000}, 60000)
	before := s.TotalValue().Float64()
	expected := s.CashFree().Float64() + fill.FillPrice*fill.Quantity
	require.InDelta(t, expected, before, 1e-6)
}

func TestExecuteClosesExistingPositionBeforeOpeningNew(t *testing.T) {
	s := New(Default(), nil)
	startBalance := s.CashFree()
	s.Execute(Order{Symbol: "BTC-USD", IsLong: true, Quantity: 0.1, Stop: 59000, Target: 62000}, 60000)
	cashLockedInFirstEntry := startBalance.Sub(s.CashFree()).Float64()

	s.Execute(Order{Symbol: "BTC-USD", IsLong: false, Quantity: 0.2, Stop: 61000, Target: 58000}, 60500)

	pos := s.Position("BTC-USD")
	require.NotNil(t, pos)
	require.False(t, pos.IsLong)
	require.Equal(t, 0.2, pos.Quantity)
	// the first position's entry debit must have come back as proceeds,
	// not vanished: free cash after reversing should exceed what a bare
	// overwrite (debit-only, no credit) would have left behind.
	require.Greater(t, s.CashFree().Float64(), startBalance.Float64()-cashLockedInFirstEntry-0.2*60500*1.001)
}

func TestConservationAcrossEntryAndExit(t *testing.T) {
	s := New(Default(), nil)
	startBalance := s.CashFree()
	fill := s.Execute(Order{Symbol: "BTC-USD", IsLong: true, Quantity: 0.1, Stop: 1, Target: 1000000}, 60000)
	exit := s.Close("BTC-USD", 61000, ExitManual)

	cashChange := s.CashFree().Sub(startBalance)
	require.NotNil(t, exit)
	// cash moves by exactly the realized PnL less the entry commission
	require.InDelta(t, exit.RealizedPnL.Sub(fill.Commission).Float64(), cashChange.Float64(), 1e-6)
	require.True(t, cashChange.Float64() != 0)
}
