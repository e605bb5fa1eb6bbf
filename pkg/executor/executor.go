// Package executor runs a single remote call under a retry/backoff policy.
// Retry count and backoff are data, not loops duplicated per call site.
package executor

import (
	"context"
	"time"

	"github.com/tradeboard/botclient/pkg/logger"
)

// Policy describes how many times a call may be attempted and the base
// delay for exponential backoff between attempts.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

var (
	// ReadPolicy covers read-mostly status/list endpoints.
	ReadPolicy = Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}
	// MutatePolicy covers state-mutating account operations.
	MutatePolicy = Policy{MaxAttempts: 2, BaseDelay: 500 * time.Millisecond}
	// FastPolicy is the latency-sensitive first-paint path: one shot,
	// no backoff. A slow retry would visibly stall initial render.
	FastPolicy = Policy{MaxAttempts: 1}
)

// Func is one attempt of a remote call.
type Func func(ctx context.Context) error

// Do attempts fn under the policy. On failure with attempts remaining it
// sleeps BaseDelay * 2^(attempt-1) and retries; attempts are strictly
// sequential. The last error is returned unchanged so callers can inspect
// its identity (status codes, server messages). Context cancellation stops
// both in-flight waits and further attempts.
func Do(ctx context.Context, policy Policy, fn Func) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if ctx.Err() != nil {
			// cancelled mid-flight; no retry after cancellation
			break
		}

		delay := policy.BaseDelay << (attempt - 1)
		logger.Debugf("executor: attempt %d/%d failed (%v), retrying in %s", attempt, attempts, lastErr, delay)
		if !sleep(ctx, delay) {
			break
		}
	}
	return lastErr
}

// DoResult is Do for calls that produce a value.
func DoResult[T any](ctx context.Context, policy Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, policy, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
