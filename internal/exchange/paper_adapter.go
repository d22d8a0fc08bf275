package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/keryxflow/keryxflow/internal/ohlcv"
	"github.com/keryxflow/keryxflow/internal/paperengine"
)

// PaperAdapter implements Adapter entirely in-process atop
// internal/paperengine and internal/ohlcv, per §4.11: "the paper matching
// engine implements this port locally." Ticks are injected by a feed
// driver (historical replay or a live venue's public tick stream) via
// Ingest; SubscribeTicks fans that stream out to one channel per caller so
// ordering is preserved for every subscriber.
type PaperAdapter struct {
	mu        sync.Mutex
	sim       *paperengine.Simulator
	buffers   map[string]*ohlcv.Buffer
	newBuffer func(symbol string) *ohlcv.Buffer
	subs      map[string][]chan Tick
	orderSeq  int
}

// NewPaperAdapter constructs a PaperAdapter over an existing simulator.
// newBuffer constructs a fresh OHLCV buffer for a symbol the first time
// it's seen.
func NewPaperAdapter(sim *paperengine.Simulator, newBuffer func(symbol string) *ohlcv.Buffer) *PaperAdapter {
	return &PaperAdapter{
		sim:       sim,
		buffers:   make(map[string]*ohlcv.Buffer),
		newBuffer: newBuffer,
		subs:      make(map[string][]chan Tick),
	}
}

// Ingest feeds one tick into the adapter: it updates the symbol's OHLCV
// buffer and fans the tick out, in order, to every subscriber.
func (p *PaperAdapter) Ingest(tick Tick) {
	p.mu.Lock()
	buf := p.bufferLocked(tick.Symbol)
	chans := append([]chan Tick(nil), p.subs[tick.Symbol]...)
	p.mu.Unlock()

	buf.OnTick(ohlcv.Tick{Timestamp: tick.Timestamp, Price: tick.Price, Volume: tick.Volume})

	for _, ch := range chans {
		ch <- tick
	}
}

func (p *PaperAdapter) bufferLocked(symbol string) *ohlcv.Buffer {
	buf, ok := p.buffers[symbol]
	if !ok {
		buf = p.newBuffer(symbol)
		p.buffers[symbol] = buf
	}
	return buf
}

// SubscribeTicks returns a fresh channel for symbol; each call is
// independent and restartable.
func (p *PaperAdapter) SubscribeTicks(ctx context.Context, symbol string) (<-chan Tick, error) {
	ch := make(chan Tick, 256)
	p.mu.Lock()
	p.subs[symbol] = append(p.subs[symbol], ch)
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		list := p.subs[symbol]
		for i, c := range list {
			if c == ch {
				p.subs[symbol] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// FetchOHLCV returns the last limit completed candles for symbol.
func (p *PaperAdapter) FetchOHLCV(ctx context.Context, symbol, tf string, limit int) ([]Candle, error) {
	p.mu.Lock()
	buf, ok := p.buffers[symbol]
	p.mu.Unlock()
	if !ok {
		return nil, nil
	}

	snap := buf.Snapshot()
	if limit > 0 && len(snap) > limit {
		snap = snap[len(snap)-limit:]
	}
	out := make([]Candle, len(snap))
	for i, c := range snap {
		out[i] = Candle{OpenTime: c.OpenTime, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume}
	}
	return out, nil
}

// PlaceOrder fills immediately against the paper simulator's deterministic
// matching model. The quoted price is taken from the symbol's latest
// close; callers needing a specific mark should fetch it beforehand.
func (p *PaperAdapter) PlaceOrder(ctx context.Context, intent OrderIntent) (string, error) {
	p.mu.Lock()
	buf := p.buffers[intent.Symbol]
	p.orderSeq++
	id := fmt.Sprintf("paper-%d", p.orderSeq)
	p.mu.Unlock()

	quoted := intent.Price
	if quoted == 0 && buf != nil {
		if cur := buf.Current(); cur != nil {
			quoted = cur.Close
		}
	}
	if quoted == 0 {
		return "", &OrderError{Kind: FailureInvalidSymbol, Msg: "no quote available for " + intent.Symbol}
	}

	p.sim.Execute(paperengine.Order{
		Symbol:   intent.Symbol,
		IsLong:   intent.IsBuy,
		Quantity: intent.Quantity,
	}, quoted)

	return id, nil
}

// CancelOrder is a no-op: paper fills are immediate, so there is never an
// outstanding order to cancel.
func (p *PaperAdapter) CancelOrder(ctx context.Context, orderID string) error { return nil }

// FetchBalance returns the simulator's current virtual balance as both
// total and free (the paper engine has no separate margin-locked concept).
func (p *PaperAdapter) FetchBalance(ctx context.Context) (Balance, error) {
	free := p.sim.CashFree().Float64()
	return Balance{Total: free, Free: free, Locked: 0}, nil
}

// FetchOpenPositions is populated by the caller from the simulator
// directly (internal/orchestrator holds the symbol list); this adapter
// does not track which symbols have positions.
func (p *PaperAdapter) FetchOpenPositions(ctx context.Context) ([]OpenPosition, error) {
	return nil, nil
}
