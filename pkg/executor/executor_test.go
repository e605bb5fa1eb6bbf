package executor

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), ReadPolicy, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUpToMaxAttempts(t *testing.T) {
	boom := errors.New("network down")
	calls := 0
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	err := Do(context.Background(), policy, func(ctx context.Context) error {
		calls++
		return boom
	})

	assert.Equal(t, 3, calls, "attempts must never exceed MaxAttempts")
	// error identity preserved, not wrapped
	assert.Same(t, boom, errors.Cause(err))
	assert.Equal(t, boom, err)
}

func TestDo_RecoverAfterFailure(t *testing.T) {
	calls := 0
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	err := Do(context.Background(), policy, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_FastPolicySingleAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), FastPolicy, func(ctx context.Context) error {
		calls++
		return errors.New("slow backend")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "fast path must not retry")
}

func TestDo_BackoffIsNonDecreasing(t *testing.T) {
	var stamps []time.Time
	policy := Policy{MaxAttempts: 4, BaseDelay: 10 * time.Millisecond}

	_ = Do(context.Background(), policy, func(ctx context.Context) error {
		stamps = append(stamps, time.Now())
		return errors.New("always fails")
	})

	require.Len(t, stamps, 4)
	var prev time.Duration
	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		assert.GreaterOrEqual(t, gap, prev, "delay between attempts %d and %d shrank", i, i+1)
		prev = gap
	}
	// delays double: 10ms, 20ms, 40ms
	assert.GreaterOrEqual(t, stamps[3].Sub(stamps[2]), 40*time.Millisecond)
}

func TestDo_NoRetryAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := Policy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond}

	err := Do(ctx, policy, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("failed then cancelled")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, ReadPolicy, func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestDoResult_ReturnsValue(t *testing.T) {
	got, err := DoResult(context.Background(), ReadPolicy, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestDoResult_PropagatesLastError(t *testing.T) {
	boom := errors.New("persistent")
	policy := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}
	_, err := DoResult(context.Background(), policy, func(ctx context.Context) (string, error) {
		return "", boom
	})
	assert.Equal(t, boom, err)
}
