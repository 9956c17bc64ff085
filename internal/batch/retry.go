package batch

import (
	"context"
	"math/rand/v2"
	"time"
)

// maxAttempts bounds every remote call: one initial attempt plus two retries.
const maxAttempts = 3

// retryBaseDelay is doubled per attempt and jittered. Backoff is an
// implementation nicety; callers only observe the attempt bound.
const retryBaseDelay = 200 * time.Millisecond

// Retry runs op up to maxAttempts times, retrying on any error without
// inspecting its kind. After the last attempt the error is returned to the
// caller unchanged. Every remote call in the system goes through this
// wrapper (the concrete service adapters apply it to each request).
func Retry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			delay += time.Duration(rand.Int64N(int64(delay)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return err
			}
		}
		if err = op(); err == nil {
			return nil
		}
	}
	return err
}
