// Package llm defines the LLM collaborator port: analyze(context_blob) with
// a bounded latency contract and the right to report unavailability, which
// the aggregator treats as an absent verdict rather than an error. Grounded
// on the teacher's internal/notify.Telegram (a thin external-service client
// behind a narrow interface, with a context-bounded call and a soft
// failure mode that never blocks the run loop).
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/keryxflow/keryxflow/internal/analyzer"
)

// ErrUnavailable signals the collaborator could not produce a verdict in
// time or is down; callers must treat this as "absent", not a hard error.
var ErrUnavailable = errors.New("llm: unavailable")

// DefaultTimeout is the bounded latency contract: analyze must return
// (verdict or ErrUnavailable) within this budget.
const DefaultTimeout = 10 * time.Second

// Verdict is the collaborator's opinion on a symbol's context blob.
type Verdict struct {
	Direction   analyzer.Direction
	Confidence  float64
	Rationale   string
	RiskFactors []string
}

// Collaborator is the port the aggregator consumes.
type Collaborator interface {
	Analyze(ctx context.Context, contextBlob string) (Verdict, error)
}

// AnalyzeBounded calls c.Analyze under DefaultTimeout (or the supplied
// timeout if nonzero) and converts both a context deadline and any error
// the collaborator returns into ErrUnavailable, so the caller has exactly
// two outcomes: a verdict, or "proceed technical-only".
func AnalyzeBounded(ctx context.Context, c Collaborator, contextBlob string, timeout time.Duration) (Verdict, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   Verdict
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := c.Analyze(callCtx, contextBlob)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return Verdict{}, ErrUnavailable
		}
		return r.v, nil
	case <-callCtx.Done():
		return Verdict{}, ErrUnavailable
	}
}
