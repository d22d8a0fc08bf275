// Package telemetry exposes KeryxFlow's Prometheus gauges/counters.
// Grounded directly on chidi150c-coinbase/metrics.go's pattern: package-
// level prometheus.NewCounterVec/NewGaugeVec variables registered in
// init(), with small setter helpers so the rest of the codebase never
// imports prometheus directly.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keryxflow_breaker_state",
			Help: "Circuit breaker state indicator (1 for the active state, 0 otherwise), labeled by state.",
		},
		[]string{"state"},
	)

	ordersRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keryxflow_orders_rejected_total",
			Help: "Orders rejected by the risk manager, labeled by reason.",
		},
		[]string{"reason"},
	)

	ordersApprovedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keryxflow_orders_approved_total",
			Help: "Orders approved by the risk manager, labeled by symbol.",
		},
		[]string{"symbol"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "keryxflow_event_queue_depth",
			Help: "Current depth of the event bus's queued-publish channel.",
		},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "keryxflow_open_positions",
			Help: "Current number of open paper/live positions.",
		},
	)

	equityUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "keryxflow_equity_usd",
			Help: "Current portfolio total value.",
		},
	)
)

func init() {
	prometheus.MustRegister(breakerState, ordersRejectedTotal, ordersApprovedTotal, queueDepth, openPositions, equityUSD)
}

// SetBreakerState zeroes every known state label and sets only the active
// one, mirroring the teacher's SetModelModeMetric two-series flip.
func SetBreakerState(active string) {
	for _, s := range []string{"armed", "tripped", "cooldown"} {
		v := 0.0
		if s == active {
			v = 1.0
		}
		breakerState.WithLabelValues(s).Set(v)
	}
}

func IncOrderRejected(reason string) { ordersRejectedTotal.WithLabelValues(reason).Inc() }
func IncOrderApproved(symbol string) { ordersApprovedTotal.WithLabelValues(symbol).Inc() }
func SetQueueDepth(depth int)        { queueDepth.Set(float64(depth)) }
func SetOpenPositions(n int)         { openPositions.Set(float64(n)) }
func SetEquity(v float64)            { equityUSD.Set(v) }
