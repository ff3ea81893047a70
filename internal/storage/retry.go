package storage

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryOptions allows maxRetries retries after the first attempt, backing off
// exponentially from 50ms up to 1s. A fresh backoff is built per call since
// backoff.ExponentialBackOff is not safe for concurrent use.
func RetryOptions(maxRetries int) []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second

	//nolint:gosec
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(max(maxRetries, 0)) + 1),
	}
}
