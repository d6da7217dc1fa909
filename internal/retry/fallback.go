package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// StatusSkipped marks a stage result produced by a skip-on-fail fallback.
const StatusSkipped = "skipped"

// Fallback configures RunWithFallback.
type Fallback struct {
	// Retries is the number of attempts. Values below 1 mean one attempt.
	Retries int

	// Delay is the fixed pause between attempts.
	Delay time.Duration

	// SkipOnFail turns the final failure into a skipped result.
	SkipOnFail bool
}

// DefaultFallback returns three attempts one second apart.
func DefaultFallback() Fallback {
	return Fallback{Retries: 3, Delay: time.Second}
}

// RunWithFallback runs an agent stage with fixed-delay retries.
// With SkipOnFail the last error is reported as {"status": "skipped", "error": msg}.
// Otherwise the last attempt's output, possibly partial, is returned with the error.
func RunWithFallback(ctx context.Context, fb Fallback, name string, fn func(context.Context) (map[string]any, error)) (map[string]any, error) {
	attempts := fb.Retries
	if attempts < 1 {
		attempts = 1
	}

	var lastOut map[string]any
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastOut, lastErr = out, err

		slog.Warn("stage attempt failed", "stage", name, "attempt", attempt, "of", attempts, "error", err)

		if attempt == attempts || ctx.Err() != nil {
			break
		}

		select {
		case <-ctx.Done():
		case <-time.After(fb.Delay):
		}
	}

	if fb.SkipOnFail {
		return map[string]any{"status": StatusSkipped, "error": lastErr.Error()}, nil
	}
	return lastOut, fmt.Errorf("%s: %w", name, lastErr)
}
