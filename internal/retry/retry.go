// Package retry provides exponential backoff for transient failures
// and the fixed-delay fallback used around agent stages.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"time"
)

// Config defines retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// Multiplier is the factor by which delay increases each retry.
	Multiplier float64

	// Jitter adds randomness to delays (0-1, where 0.1 = 10% jitter).
	Jitter float64
}

// DefaultConfig returns sensible retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// LLMConfig returns retry config for calls to the local model server.
// Local inference is slow to recover, so delays grow faster than for tools.
func LLMConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     20 * time.Second,
		Multiplier:   3.0,
		Jitter:       0.2,
	}
}

// ToolConfig returns retry config for engine and compiler CLI invocations.
func ToolConfig() Config {
	return Config{
		MaxAttempts:  2,
		InitialDelay: 2 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   1.5,
		Jitter:       0.1,
	}
}

// WebhookConfig returns retry config for chat and notification webhooks.
func WebhookConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Do executes fn until it succeeds, returns a Permanent error, or attempts run out.
func Do(ctx context.Context, cfg Config, operation string, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		var permErr *permanentError
		if errors.As(err, &permErr) {
			return permErr.Unwrap()
		}

		if ctx.Err() != nil {
			return fmt.Errorf("%s failed: %w (context cancelled)", operation, lastErr)
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		delay := cfg.delayForAttempt(attempt)

		slog.Debug("retrying operation",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"delay", delay,
			"error", err.Error())

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s failed: %w (context cancelled during backoff)", operation, lastErr)
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, cfg.MaxAttempts, lastErr)
}

func (c Config) delayForAttempt(attempt int) time.Duration {
	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))

	if c.Jitter > 0 {
		jitterRange := delay * c.Jitter
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent wraps an error to indicate it should not be retried.
// Use this for validation errors, 4xx responses, etc.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryable returns true if the error is likely transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var permErr *permanentError
	if errors.As(err, &permErr) {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return true
}
