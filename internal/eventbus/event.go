// Package eventbus implements the typed pub/sub hub described in the
// KeryxFlow trading core: a bounded-queue async dispatcher plus a
// synchronous broadcast path, modeled after the teacher's run-loop style of
// wiring producers and consumers purely through channels (see
// internal/app.App.Run in the teacher repo).
package eventbus

import "time"

// Category is the closed taxonomy of event kinds the bus dispatches.
type Category string

const (
	CategoryPrice    Category = "price"
	CategorySignal   Category = "signal"
	CategoryOrder    Category = "order"
	CategoryPosition Category = "position"
	CategoryRisk     Category = "risk"
	CategoryTrailing Category = "trailing"
	CategorySystem   Category = "system"
)

// Kind enumerates the specific event types within each category.
type Kind string

const (
	KindTick        Kind = "tick"
	KindCandleClose Kind = "candle_close"

	KindSignalGenerated Kind = "signal_generated"
	KindSignalValidated Kind = "signal_validated"
	KindSignalRejected  Kind = "signal_rejected"

	KindOrderRequested Kind = "order_requested"
	KindOrderApproved  Kind = "order_approved"
	KindOrderRejected  Kind = "order_rejected"
	KindOrderSubmitted Kind = "order_submitted"
	KindOrderFilled    Kind = "order_filled"
	KindOrderCancelled Kind = "order_cancelled"

	KindPositionOpened  Kind = "position_opened"
	KindPositionUpdated Kind = "position_updated"
	KindPositionClosed  Kind = "position_closed"

	KindRiskAlert      Kind = "risk_alert"
	KindBreakerTripped Kind = "breaker_tripped"
	KindBreakerReset   Kind = "breaker_reset"
	KindDrawdownWarn   Kind = "drawdown_warn"

	KindStopLossTrailed   Kind = "stop_loss_trailed"
	KindStopLossBreakeven Kind = "stop_loss_breakeven"

	KindSystemStarted Kind = "system_started"
	KindSystemStopped Kind = "system_stopped"
	KindSystemPaused  Kind = "system_paused"
	KindSystemResumed Kind = "system_resumed"
	KindSystemPanic   Kind = "system_panic"
)

// Event is the envelope carried by the bus. Payload is category-specific
// and should be type-asserted by subscribers that know what category they
// registered for.
type Event struct {
	Category  Category
	Kind      Kind
	Timestamp time.Time
	Payload   interface{}
}

// Handler processes one event. Handlers must not panic and should return
// quickly; long work must be offloaded to another goroutine by the handler
// itself.
type Handler func(Event)
