package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), DefaultRetryPolicy(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	orig := sleeper
	sleeper = func(time.Duration) {}
	defer func() { sleeper = orig }()

	calls := 0
	want := errors.New("boom")
	err := WithRetry(context.Background(), RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return want
	})
	require.Equal(t, want, err)
	require.Equal(t, 3, calls)
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	orig := sleeper
	sleeper = func(time.Duration) {}
	defer func() { sleeper = orig }()

	calls := 0
	err := WithRetry(context.Background(), RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}
