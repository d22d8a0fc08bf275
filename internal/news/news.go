// Package news defines the news aggregator port: recent(symbol, lookback)
// returning sentiment-scored items, with non-fatal failures. Grounded on
// the same notify/telegram.go external-client shape as internal/llm —
// a narrow interface around an outside service that the run loop must
// never be blocked or aborted by.
package news

import (
	"context"
	"time"
)

// Item is one news item about a symbol.
type Item struct {
	Source    string
	Timestamp time.Time
	Sentiment float64 // [-1, 1]
	Mentions  []string
}

// Aggregator is the port the orchestrator (or aggregator, if wired in)
// consumes for market context.
type Aggregator interface {
	Recent(ctx context.Context, symbol string, lookback time.Duration) ([]Item, error)
}

// RecentSafe calls a.Recent and swallows any error into an empty slice,
// since news failures are explicitly non-fatal per the port contract.
func RecentSafe(ctx context.Context, a Aggregator, symbol string, lookback time.Duration) []Item {
	if a == nil {
		return nil
	}
	items, err := a.Recent(ctx, symbol, lookback)
	if err != nil {
		return nil
	}
	return items
}
