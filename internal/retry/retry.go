// Package retry wraps fallible calls with bounded attempts and linear backoff.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultBaseDelay is the backoff unit; attempt n waits n units.
const DefaultBaseDelay = time.Second

// Policy configures Do.
type Policy struct {
	BaseDelay time.Duration
	Logger    *slog.Logger

	// OnFailure, if set, observes every failed attempt.
	OnFailure func(label string, attempt int, err error)
	// Sleep replaces the context-aware wait between attempts.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ExhaustedError is returned once every attempt failed.
type ExhaustedError struct {
	Label    string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Label, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do runs op up to maxAttempts times, stopping at the first success.
func Do[T any](ctx context.Context, p Policy, maxAttempts int, label string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		logger.Warn(fmt.Sprintf("%s attempt %d/%d failed", label, attempt, maxAttempts),
			slog.String("label", label),
			slog.Int("attempt", attempt),
			slog.Int("max", maxAttempts),
			slog.String("error", err.Error()),
		)
		if p.OnFailure != nil {
			p.OnFailure(label, attempt, err)
		}

		if attempt < maxAttempts {
			if err := sleep(ctx, time.Duration(attempt)*p.BaseDelay); err != nil {
				return zero, fmt.Errorf("%s interrupted after attempt %d: %w", label, attempt, err)
			}
		}
	}

	return zero, &ExhaustedError{Label: label, Attempts: maxAttempts, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
