/*
Package resilience implements retry-with-backoff for operations the token
agent performs against unreliable external sources. The refresh loop uses
it to wrap every source fetch; sink writes are not retried through it.

	strategy := resilience.RetryStrategy{
		Attempts:     5,
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}

	err := strategy.Run(ctx, func(ctx context.Context) error {
		return source.Fetch(ctx)
	})

Delay doubles after every failed attempt, capped at MaxDelay. Run returns
the last error once Attempts is exhausted, or ctx.Err() if the context is
canceled while waiting between attempts.
*/
package resilience
