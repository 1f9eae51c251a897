package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/starter/pkg/retry"
	"github.com/stretchr/testify/require"
)

var fast = retry.Policy{MaxAttempts: 3, MinWait: time.Millisecond, MaxWait: 5 * time.Millisecond}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), fast, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := retry.Do(context.Background(), fast, func(context.Context) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, calls)
}

func TestDoStopsOnPermanent(t *testing.T) {
	bad := errors.New("bad input")
	calls := 0
	err := retry.Do(context.Background(), fast, func(context.Context) error {
		calls++
		return retry.Permanent(bad)
	})
	require.ErrorIs(t, err, bad)
	require.Equal(t, 1, calls)
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retry.Do(ctx, retry.Policy{MaxAttempts: 5, MinWait: time.Hour, MaxWait: time.Hour}, func(context.Context) error {
		calls++
		return errors.New("fail")
	})
	require.Error(t, err)
	require.LessOrEqual(t, calls, 1)
}
