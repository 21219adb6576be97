// Package retry runs an operation a bounded number of times, giving every
// attempt its own deadline.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retry loop.
type Policy struct {
	// Attempts is the total number of calls, including the first. Values
	// below 1 are treated as 1.
	Attempts int

	// AttemptTimeout bounds each individual call. Zero means the attempt
	// only inherits the parent context deadline.
	AttemptTimeout time.Duration

	// Delay is the pause between attempts. Zero retries immediately, which
	// is what a timeout-bounded acquisition wants.
	Delay time.Duration

	// OnRetry, when set, is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Permanent wraps err so that Do stops retrying and returns it unwrapped.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do calls op until it succeeds, returns a Permanent error, the parent context
// ends, or the policy's attempts are exhausted. The last attempt's error is
// returned on exhaustion.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	b = backoff.WithMaxRetries(b, uint64(attempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	operation := func() error {
		attempt++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		attemptCtx := ctx
		if p.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
			defer cancel()
		}

		err := op(attemptCtx)
		if err != nil && ctx.Err() != nil && errors.Is(err, context.DeadlineExceeded) {
			// the parent ended, not the attempt
			return backoff.Permanent(ctx.Err())
		}
		return err
	}

	notify := func(err error, _ time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
	}

	return backoff.RetryNotify(operation, b, notify)
}
