// Package retry wraps dispatch attempts in a bounded backoff loop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ottoflow/otto/pkg/models"
)

// Sleeper waits out a backoff delay, returning early with the context error
// on cancellation. Injectable so tests can run without real delays.
type Sleeper func(ctx context.Context, delay time.Duration) error

func defaultSleeper(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryableError is implemented by errors that know whether another attempt
// could succeed.
type retryableError interface {
	IsRetryable() bool
}

type Option func(*Controller)

func WithSleeper(sleeper Sleeper) Option {
	return func(c *Controller) {
		c.sleep = sleeper
	}
}

type Controller struct {
	sleep  Sleeper
	logger *slog.Logger
}

func NewController(logger *slog.Logger, opts ...Option) *Controller {
	controller := &Controller{
		sleep:  defaultSleeper,
		logger: logger,
	}

	for _, opt := range opts {
		opt(controller)
	}

	return controller
}

// Do runs fn up to policy.MaxAttempts times, waiting out the policy's
// backoff before each retry and never after the final attempt. It stops
// early on a non-retryable error or when the context is cancelled, and
// returns the number of attempts made together with the final error.
func (c *Controller) Do(ctx context.Context, policy models.RetryPolicy, fn func(attempt int) error) (int, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, fmt.Errorf("retry loop cancelled: %w", err)
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return attempt, nil
		}

		var classified retryableError
		if errors.As(lastErr, &classified) && !classified.IsRetryable() {
			return attempt, lastErr
		}

		if attempt == maxAttempts {
			break
		}

		delay := policy.Delay(attempt)

		c.logger.DebugContext(ctx, "Retrying after backoff",
			"attempt", attempt, "max_attempts", maxAttempts, "delay", delay)

		if err := c.sleep(ctx, delay); err != nil {
			return attempt, fmt.Errorf("retry backoff interrupted: %w", err)
		}
	}

	return maxAttempts, lastErr
}
