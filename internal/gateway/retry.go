package gateway

import (
	"context"
	"time"
)

// withRetry runs fn and retries it after a backoff delay until it succeeds,
// the attempts run out, or ctx is done.
func (o options) withRetry(ctx context.Context, what string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(o.retryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}

			o.log.Info().Printf("Retrying %s, attempt %d", what, attempt+1)
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		o.log.Error().Printf("Attempt %d failed for %s: %v", attempt+1, what, err)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return lastErr
}
