// Package resilience retries operations against databases that are still
// starting up, with capped exponential backoff.
//
//	conn, err := resilience.Retry(ctx, resilience.RetryConfig{
//	    MaxAttempts: 3,
//	    RetryIf:     database.IsRetryableError,
//	}, func(attempt int) (*Conn, error) {
//	    return dial(ctx)
//	})
package resilience
