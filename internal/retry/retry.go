// Package retry provides exponential backoff retry for transient
// local failures.
//
// Symbol files are rewritten underneath us: linkers and packagers
// replace a binary by writing a temp file and renaming it over the old
// name, and a read that lands inside that window sees ENOENT or a
// truncated file. Those failures clear themselves in milliseconds, so
// the right response is a short spell of retries rather than an error.
//
// # Basic Usage
//
//	cfg := retry.Config{
//	    MaxRetries:     4,
//	    InitialBackoff: 15 * time.Millisecond,
//	    MaxBackoff:     120 * time.Millisecond,
//	}
//
//	err := retry.Do(ctx, cfg, func() error {
//	    return readSymbolFile(path)
//	}, func(err error) bool {
//	    return errors.Is(err, fs.ErrNotExist)
//	})
//
// # Backoff Strategy
//
// The backoff duration grows exponentially: InitialBackoff * 2^(attempt-1).
// With an InitialBackoff of 15ms the waits are 15ms, 30ms, 60ms and so
// on, capped at MaxBackoff when one is set. Optional jitter spreads the
// attempts out so probes do not land in lockstep with the writer that
// is replacing the file.
//
// # Context Cancellation
//
// Retries respect context cancellation. If the context is canceled
// during a backoff wait, Do returns the context error immediately.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Config defines the retry behavior for exponential backoff operations.
//
// The zero value is not usable; MaxRetries and InitialBackoff must be set.
type Config struct {
	// MaxRetries is the maximum number of attempts. The function is
	// called at most MaxRetries times. Must be greater than 0.
	MaxRetries int

	// InitialBackoff is the base backoff duration. Each retry
	// multiplies it by 2^(attempt-1). Must be greater than 0.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration. Zero means no cap and the
	// backoff grows unbounded.
	MaxBackoff time.Duration

	// Jitter adds randomness to the backoff (0.0 to 1.0). The jitter
	// amount grows linearly with the attempt number:
	//   jitter_amount = backoff * Jitter * attempt / MaxRetries
	// Zero means no jitter.
	Jitter float64
}

// ShouldRetryFunc reports whether an error should trigger another
// attempt. Return false to fail immediately with that error. A nil
// ShouldRetryFunc passed to Do retries every error.
//
// Example:
//
//	shouldRetry := func(err error) bool {
//	    return errors.Is(err, fs.ErrNotExist)
//	}
type ShouldRetryFunc func(error) bool

// Do executes fn with exponential backoff retry.
//
// fn is called up to cfg.MaxRetries times. A nil return ends the loop
// immediately. On error, shouldRetry decides whether the error is
// worth another attempt; a nil shouldRetry treats every error as
// retryable, and a false answer returns the error as is.
//
// When all attempts are exhausted, Do returns an error wrapping the
// last one from fn. When the context is canceled during a backoff
// wait, Do returns the context error immediately.
func Do(ctx context.Context, cfg Config, fn func() error, shouldRetry ShouldRetryFunc) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		// Backoff before every attempt but the first.
		if attempt > 0 {
			backoff := calculateBackoff(cfg, attempt)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// calculateBackoff computes the backoff duration for a given attempt:
// exponential growth from InitialBackoff, capped at MaxBackoff, with
// jitter applied last. The jitter amount grows linearly with the
// attempt number so later probes spread out further.
func calculateBackoff(cfg Config, attempt int) time.Duration {
	// Exponential backoff: 2^(attempt-1) * InitialBackoff.
	multiplier := math.Pow(2, float64(attempt-1))
	backoff := time.Duration(multiplier * float64(cfg.InitialBackoff))

	if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
		backoff = cfg.MaxBackoff
	}

	// Jitter grows with the attempt number.
	if cfg.Jitter > 0 {
		jitterAmount := float64(backoff) * cfg.Jitter * float64(attempt) / float64(cfg.MaxRetries)
		backoff += time.Duration(jitterAmount)
	}

	return backoff
}
