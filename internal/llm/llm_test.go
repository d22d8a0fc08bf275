package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/keryxflow/keryxflow/internal/analyzer"
	"github.com/stretchr/testify/require"
)

type fakeCollaborator struct {
	delay  time.Duration
	verdict Verdict
	err    error
}

func (f fakeCollaborator) Analyze(ctx context.Context, blob string) (Verdict, error) {
	select {
	case <-time.After(f.delay):
		return f.verdict, f.err
	case <-ctx.Done():
		return Verdict{}, ctx.Err()
	}
}

func TestAnalyzeBoundedReturnsVerdict(t *testing.T) {
	c := fakeCollaborator{verdict: Verdict{Direction: analyzer.Bullish, Confidence: 0.8}}
	v, err := AnalyzeBounded(context.Background(), c, "ctx", time.Second)
	require.NoError(t, err)
	require.Equal(t, analyzer.Bullish, v.Direction)
}

func TestAnalyzeBoundedTimesOut(t *testing.T) {
	c := fakeCollaborator{delay: 100 * time.Millisecond}
	_, err := AnalyzeBounded(context.Background(), c, "ctx", 10*time.Millisecond)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestAnalyzeBoundedConvertsErrorToUnavailable(t *testing.T) {
	c := fakeCollaborator{err: errors.New("provider down")}
	_, err := AnalyzeBounded(context.Background(), c, "ctx", time.Second)
	require.ErrorIs(t, err, ErrUnavailable)
}
