package retry

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ottoflow/otto/pkg/models"
)

// recordingSleeper captures the delays the controller asks for instead of
// actually sleeping.
type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, delay time.Duration) error {
	s.delays = append(s.delays, delay)

	return nil
}

type markedError struct {
	retryable bool
}

func (e *markedError) Error() string     { return "marked failure" }
func (e *markedError) IsRetryable() bool { return e.retryable }

func newTestController(sleeper *recordingSleeper) *Controller {
	return NewController(slog.Default(), WithSleeper(sleeper.sleep))
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	sleeper := &recordingSleeper{}
	controller := newTestController(sleeper)

	attempts, err := controller.Do(context.Background(), models.RetryPolicy{MaxAttempts: 3, BaseDelayMs: 100}, func(_ int) error {
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, sleeper.delays)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	sleeper := &recordingSleeper{}
	controller := newTestController(sleeper)

	calls := 0
	failure := errors.New("always fails")

	attempts, err := controller.Do(context.Background(),
		models.RetryPolicy{MaxAttempts: 3, Backoff: models.BackoffFixed, BaseDelayMs: 50},
		func(_ int) error {
			calls++

			return failure
		})

	require.ErrorIs(t, err, failure)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
	// Delay before each retry, never after the final attempt.
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 50 * time.Millisecond}, sleeper.delays)
}

func TestDo_BackoffShapes(t *testing.T) {
	tests := []struct {
		name    string
		backoff models.BackoffStrategy
		want    []time.Duration
	}{
		{"fixed", models.BackoffFixed, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}},
		{"linear", models.BackoffLinear, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}},
		{"exponential", models.BackoffExponential, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sleeper := &recordingSleeper{}
			controller := newTestController(sleeper)

			_, err := controller.Do(context.Background(),
				models.RetryPolicy{MaxAttempts: 3, Backoff: tt.backoff, BaseDelayMs: 100},
				func(_ int) error {
					return errors.New("fail")
				})

			require.Error(t, err)
			assert.Equal(t, tt.want, sleeper.delays)
		})
	}
}

func TestDo_ExponentialSequence(t *testing.T) {
	sleeper := &recordingSleeper{}
	controller := newTestController(sleeper)

	_, err := controller.Do(context.Background(),
		models.RetryPolicy{MaxAttempts: 4, Backoff: models.BackoffExponential, BaseDelayMs: 100},
		func(_ int) error {
			return errors.New("fail")
		})

	require.Error(t, err)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}, sleeper.delays)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	sleeper := &recordingSleeper{}
	controller := newTestController(sleeper)

	calls := 0

	attempts, err := controller.Do(context.Background(),
		models.RetryPolicy{MaxAttempts: 5, BaseDelayMs: 10},
		func(_ int) error {
			calls++

			return &markedError{retryable: false}
		})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeper.delays)
}

func TestDo_RetryableMarkKeepsRetrying(t *testing.T) {
	sleeper := &recordingSleeper{}
	controller := newTestController(sleeper)

	calls := 0

	_, err := controller.Do(context.Background(),
		models.RetryPolicy{MaxAttempts: 3, BaseDelayMs: 10},
		func(_ int) error {
			calls++

			return &markedError{retryable: true}
		})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_CancelledContextStopsLoop(t *testing.T) {
	controller := NewController(slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts, err := controller.Do(ctx,
		models.RetryPolicy{MaxAttempts: 3, BaseDelayMs: 10},
		func(_ int) error {
			t.Fatal("fn must not run after cancellation")

			return nil
		})

	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, attempts)
}

func TestDo_CancellationDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	controller := NewController(slog.Default(), WithSleeper(func(ctx context.Context, _ time.Duration) error {
		cancel()

		return ctx.Err()
	}))

	calls := 0

	attempts, err := controller.Do(ctx,
		models.RetryPolicy{MaxAttempts: 5, BaseDelayMs: 10},
		func(_ int) error {
			calls++

			return errors.New("fail")
		})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}
