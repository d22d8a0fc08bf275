// Package ohlcv implements the per-symbol rolling candle buffer: ticks
// fold into 1-minute candles, completed candles are immutable, and a
// point-in-time snapshot never contains the in-progress candle marked
// complete. Grounded on the teacher's internal/feed.BookSnapshot (a
// per-symbol rolling state struct updated on every book event) for the
// shape of incremental per-tick state; the minute-bucketing and
// finalize-on-boundary logic is new, since the teacher trades against an
// order book rather than aggregating ticks into bars.
package ohlcv

import (
	"time"

	"github.com/keryxflow/keryxflow/internal/eventbus"
)

// DefaultCapacity is the ring buffer's default completed-candle capacity.
const DefaultCapacity = 500

// Candle is one OHLCV bar. Complete is false only for the in-progress bar
// returned by a caller that explicitly asks for it; every candle in a
// Snapshot has Complete == true.
type Candle struct {
	OpenTime                       time.Time
	Open, High, Low, Close, Volume float64
	Complete                       bool
}

// Tick is one price update fed into the buffer.
type Tick struct {
	Timestamp time.Time
	Price     float64
	Volume    float64
}

// Buffer is a fixed-capacity ring of completed 1-minute candles for one
// symbol, plus the in-progress candle being built.
type Buffer struct {
	symbol   string
	capacity int
	candles  []Candle // ring, oldest first
	current  *Candle
	bus      *eventbus.Bus
}

// New constructs a Buffer for symbol with the given capacity (0 uses
// DefaultCapacity).
func New(symbol string, capacity int, bus *eventbus.Bus) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{symbol: symbol, capacity: capacity, bus: bus}
}

func minuteBucket(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}

// OnTick folds a tick into the current minute candle, finalizing and
// emitting the prior candle if the tick crosses into a new minute.
func (b *Buffer) OnTick(tick Tick) {
	bucket := minuteBucket(tick.Timestamp)

	if b.current == nil {
		b.current = &Candle{OpenTime: bucket, Open: tick.Price, High: tick.Price, Low: tick.Price, Close: tick.Price, Volume: tick.Volume}
		return
	}

	if bucket.Equal(b.current.OpenTime) {
		b.current.High = maxFloat(b.current.High, tick.Price)
		b.current.Low = minFloat(b.current.Low, tick.Price)
		b.current.Close = tick.Price
		b.current.Volume += tick.Volume
		return
	}

	b.finalize()
	b.current = &Candle{OpenTime: bucket, Open: tick.Price, High: tick.Price, Low: tick.Price, Close: tick.Price, Volume: tick.Volume}
}

func (b *Buffer) finalize() {
	if b.current == nil {
		return
	}
	completed := *b.current
	completed.Complete = true

	b.candles = append(b.candles, completed)
	if len(b.candles) > b.capacity {
		b.candles = b.candles[len(b.candles)-b.capacity:]
	}

	if b.bus != nil {
		b.bus.Publish(eventbus.Event{
			Category:  eventbus.CategoryPrice,
			Kind:      eventbus.KindCandleClose,
			Timestamp: completed.OpenTime,
			Payload:   struct {
				Symbol string
				Candle Candle
			}{Symbol: b.symbol, Candle: completed},
		})
	}
}

// Seed preloads historical candles (e.g. from an exchange adapter's
// fetch_ohlcv) without emitting candle-close events. Candles must already
// be complete and ordered oldest-first.
func (b *Buffer) Seed(candles []Candle) {
	for i := range candles {
		candles[i].Complete = true
	}
	b.candles = append(append([]Candle(nil), candles...), b.candles...)
	if len(b.candles) > b.capacity {
		b.candles = b.candles[len(b.candles)-b.capacity:]
	}
}

// Snapshot returns every completed candle, oldest first. Never includes
// the in-progress candle.
func (b *Buffer) Snapshot() []Candle {
	out := make([]Candle, len(b.candles))
	copy(out, b.candles)
	return out
}

// Current returns the in-progress candle, or nil if none has started.
func (b *Buffer) Current() *Candle {
	if b.current == nil {
		return nil
	}
	c := *b.current
	return &c
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
