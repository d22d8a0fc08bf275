package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSetBreakerStateFlipsExactlyOneSeries(t *testing.T) {
	SetBreakerState("tripped")
	require.Equal(t, 1.0, testutil.ToFloat64(breakerState.WithLabelValues("tripped")))
	require.Equal(t, 0.0, testutil.ToFloat64(breakerState.WithLabelValues("armed")))
}

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(ordersRejectedTotal.WithLabelValues("stop loss required"))
	IncOrderRejected("stop loss required")
	require.Equal(t, before+1, testutil.ToFloat64(ordersRejectedTotal.WithLabelValues("stop loss required")))
}

func TestGaugeSetters(t *testing.T) {
	SetQueueDepth(42)
	require.Equal(t, 42.0, testutil.ToFloat64(queueDepth))

	SetOpenPositions(3)
	require.Equal(t, 3.0, testutil.ToFloat64(openPositions))

	SetEquity(12345.67)
	require.Equal(t, 12345.67, testutil.ToFloat64(equityUSD))
}
