package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is a bounded retry strategy with a fixed delay between attempts.
// Retryable decides which errors are worth another attempt; nil retries everything.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	Retryable   func(error) bool
	Logger      *Logger
}

// WithRetryable returns a copy of the policy that only retries errors accepted by fn.
func (r RetryPolicy) WithRetryable(fn func(error) bool) *RetryPolicy {
	r.Retryable = fn
	return &r
}

// Do runs fn until it succeeds, returns a non-retryable error, or MaxAttempts is used up.
// A non-retryable error is returned as is; exhaustion wraps the last error.
func (r *RetryPolicy) Do(ctx context.Context, operationName string, fn func() error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var b backoff.BackOff = backoff.WithMaxRetries(backoff.NewConstantBackOff(r.Backoff), uint64(attempts-1))
	if ctx != nil {
		b = backoff.WithContext(b, ctx)
	}

	attempt := 0
	op := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if r.Retryable != nil && !r.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		if r.Logger != nil {
			r.Logger.Warn("[retry] %s failed (attempt %d/%d): %v; retrying in %v",
				operationName, attempt, attempts, err, wait)
		}
	}

	err := backoff.RetryNotify(op, b, notify)
	if err == nil {
		return nil
	}
	if r.Retryable != nil && !r.Retryable(err) {
		return err
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operationName, attempt, err)
}
