package resilience

import (
	"context"
	"time"
)

// RetryStrategy configures run_with_retry: a fixed attempt budget and an
// exponentially doubling delay between attempts, capped at MaxDelay.
type RetryStrategy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Op is the operation retried by Run. It receives the attempt's context so
// callers can thread tracing spans or per-attempt timeouts through it.
type Op func(ctx context.Context) error

// Run executes op up to Attempts times. Between failed attempts it sleeps
// for BaseDelay * 2^(attempt-1), capped at MaxDelay, honoring ctx
// cancellation during the sleep. It returns nil on the first success, or
// the last error once the attempt budget is exhausted.
func (r RetryStrategy) Run(ctx context.Context, op Op) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := r.BaseDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == attempts {
			break
		}

		wait := delay
		if r.MaxDelay > 0 && wait > r.MaxDelay {
			wait = r.MaxDelay
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}

		if delay < r.MaxDelay {
			delay *= 2
			if r.MaxDelay > 0 && delay > r.MaxDelay {
				delay = r.MaxDelay
			}
		}
	}

	return lastErr
}

// RunWithRetry is a functional entry point matching the shape used
// elsewhere in the engine: attempts and delays in milliseconds, rather
// than a pre-built RetryStrategy value.
func RunWithRetry(ctx context.Context, attempts int, baseDelayMS, maxDelayMS int64, op Op) error {
	strategy := RetryStrategy{
		Attempts:  attempts,
		BaseDelay: time.Duration(baseDelayMS) * time.Millisecond,
		MaxDelay:  time.Duration(maxDelayMS) * time.Millisecond,
	}
	return strategy.Run(ctx, op)
}
