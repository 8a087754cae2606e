package storage

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/magnusmanske/baglama2-go/internal/baglamaerr"
)

// WithRetry runs op, retrying transient errors (per
// baglamaerr.IsRetryable) with a constant backoff up to maxAttempts
// total tries. On exhaustion the last error surfaces unchanged. Used by
// the server variant for every statement; the sqlite variant does not
// retry.
func WithRetry(ctx context.Context, maxAttempts int, wait time.Duration, op func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(wait), uint64(maxAttempts-1)), ctx)

	var lastErr error
	err := backoff.Retry(func() error {
		err := op()
		lastErr = err
		if err == nil {
			return nil
		}
		if baglamaerr.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, bo)
	if err != nil {
		return lastErr
	}
	return nil
}
