package gateway

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"

	"github.com/magnusmanske/baglama2-go/internal/baglamaerr"
)

// withRetry executes op, retrying up to maxAttempts times total with a
// fixed holdOn delay between attempts when the error looks transient
// (§4.1: "retries up to 5 times with a fixed hold_on delay between
// attempts; a retriable failure drops the connection and retransmits. On
// exhaustion, the original error surfaces."). Non-retriable errors (and
// context cancellation) stop immediately.
//
// Retry belongs here, in the gateway, not in the pipeline (spec §9):
// pipeline callers see either success or a final error; they never count
// attempts themselves.
func (g *Gateway) withRetry(ctx context.Context, op func() error) error {
	if g.cfg.RetryMaxAttempts <= 1 {
		return op()
	}

	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(g.cfg.HoldOn()), uint64(g.cfg.RetryMaxAttempts-1))
	var lastErr error
	err := backoff.Retry(func() error {
		err := op()
		lastErr = err
		if err == nil {
			return nil
		}
		if !baglamaerr.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))

	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		// Retries exhausted: surface the original error, per spec.
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}
