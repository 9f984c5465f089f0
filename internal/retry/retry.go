// Package retry provides the bounded exponential backoff executor wrapped
// around every remote read on the enrichment path. Only failures classified
// as transient (429 and 5xx gateway statuses, or transport-level errors) are
// retried; everything else propagates unchanged to the caller.
package retry

import (
	"context"
	"crypto/rand"
	"time"

	"crm-insights/internal/common/errors"
)

// Config holds configuration for retry operations with exponential backoff
type Config struct {
	// Retries is the number of retries after the initial attempt
	Retries int

	// BaseDelay is the backoff base: delay = BaseDelay * 2^attempt
	BaseDelay time.Duration

	// MaxJitter is the upper bound of the random jitter added to each delay
	MaxJitter time.Duration

	// Retryable determines which errors trigger a retry.
	// Defaults to errors.IsTransient.
	Retryable func(error) bool
}

// DefaultConfig returns the executor configuration used for platform reads:
// 3 retries, 300ms base delay, up to 100ms jitter.
func DefaultConfig() Config {
	return Config{
		Retries:   3,
		BaseDelay: 300 * time.Millisecond,
		MaxJitter: 100 * time.Millisecond,
	}
}

// Do executes fn with exponential backoff.
//
// The delay before retry n (0-based) is BaseDelay * 2^n plus random jitter
// in [0, MaxJitter). A non-retryable error, or the last error once retries
// are exhausted, is returned unchanged.
func Do(ctx context.Context, config Config, fn func() error) error {
	retryable := config.Retryable
	if retryable == nil {
		retryable = errors.IsTransient
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err

			if !retryable(err) {
				return err
			}

			if attempt >= config.Retries {
				return lastErr
			}
		}

		delay := config.BaseDelay * (1 << uint(attempt))
		if config.MaxJitter > 0 {
			delay += time.Duration(randomInt64n(int64(config.MaxJitter)))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// DoValue executes fn with the same backoff policy as Do and returns its value.
func DoValue[T any](ctx context.Context, config Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, config, func() error {
		var fnErr error
		result, fnErr = fn()
		return fnErr
	})
	return result, err
}

// randomInt64n returns a random int64 in the range [0, n) using crypto/rand,
// falling back to time-based randomness if the source fails.
func randomInt64n(n int64) int64 {
	if n <= 0 {
		return 0
	}

	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return time.Now().UnixNano() % n
	}

	val := int64(bytes[0])<<56 | int64(bytes[1])<<48 | int64(bytes[2])<<40 | int64(bytes[3])<<32 |
		int64(bytes[4])<<24 | int64(bytes[5])<<16 | int64(bytes[6])<<8 | int64(bytes[7])

	if val < 0 {
		val = -val
	}

	return val % n
}
