// Package retry provides bounded retries with exponential backoff and jitter
// for transient failures, primarily I/O against the tier directories.
package retry

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/logger"
)

// Config controls retry behavior.
type Config struct {
	// MaxAttempts is the total number of attempts including the first
	MaxAttempts int
	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration
	// Multiplier grows the delay between consecutive retries
	Multiplier float64
	// MaxDelay caps the delay between retries
	MaxDelay time.Duration
}

// DefaultConfig matches the pipeline's I/O retry policy: three attempts,
// one second initial delay, doubling each time.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
	}
}

// Do runs fn, retrying on retryable errors (see errors.IsRetryable) until it
// succeeds, the attempt budget is exhausted, or the context is cancelled.
// Non-retryable errors are returned immediately.
func Do(ctx context.Context, cfg Config, name string, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeTimeout, "retry cancelled")
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !errors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		// Jitter avoids synchronized retries against the same file.
		sleep := delay + time.Duration(rand.Int63n(int64(delay)/10+1))
		if sleep > cfg.MaxDelay {
			sleep = cfg.MaxDelay
		}

		logger.WithContext(ctx).Warn("transient failure, retrying",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Duration("backoff", sleep),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "retry cancelled")
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return errors.Wrap(lastErr, errors.ErrorTypeFile, "exhausted retry attempts").
		WithDetail("operation", name).
		WithDetail("attempts", cfg.MaxAttempts)
}
