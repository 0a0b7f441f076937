package cloud

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// withRetry runs op with exponential backoff. Object storage hiccups
// are common enough during long restores that a single failed request
// should not abort the whole pipeline.
func withRetry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = 2 * time.Minute

	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}
