package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d", e.code)
}

func (e *statusError) HTTPStatusCode() int {
	return e.code
}

func fastPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestExecute_SucceedsOnThirdAttempt(t *testing.T) {
	var calls int
	err := Execute(context.Background(), fastPolicy(), "upload part", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &statusError{code: 503}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecute_PermanentFailureAbortsImmediately(t *testing.T) {
	var calls int
	err := Execute(context.Background(), fastPolicy(), "upload part", func(ctx context.Context) error {
		calls++
		return &statusError{code: 404}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.Attempts)
	assert.False(t, exhausted.Recoverable)
}

func TestExecute_RateLimitIsRetried(t *testing.T) {
	var calls int
	err := Execute(context.Background(), fastPolicy(), "negotiate", func(ctx context.Context) error {
		calls++
		return &statusError{code: 429}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.True(t, exhausted.Recoverable)
}

func TestExecute_ExhaustedWrapsLastError(t *testing.T) {
	underlying := &statusError{code: 500}
	err := Execute(context.Background(), fastPolicy(), "upload part", func(ctx context.Context) error {
		return underlying
	})

	require.Error(t, err)
	var target *statusError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, 500, target.code)
}

func TestExecute_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := fastPolicy()
	policy.BaseDelay = time.Minute

	done := make(chan error, 1)
	go func() {
		done <- Execute(ctx, policy, "upload part", func(ctx context.Context) error {
			return &statusError{code: 503}
		})
	}()

	cancel()

	select {
	case err := <-done:
		var exhausted *ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.False(t, exhausted.Recoverable)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not honor context cancellation")
	}
}

func TestExecute_OnRetryCallback(t *testing.T) {
	var notified []int
	policy := fastPolicy()
	policy.OnRetry = func(label string, attempt int, delay time.Duration, err error) {
		notified = append(notified, attempt)
	}

	_ = Execute(context.Background(), policy, "upload part", func(ctx context.Context) error {
		return &statusError{code: 503}
	})

	assert.Equal(t, []int{1, 2}, notified)
}

func TestDelay_CapAndJitterBounds(t *testing.T) {
	policy := Policy{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
	}

	for attempt := 1; attempt <= 10; attempt++ {
		d := policy.delay(attempt)
		// Jitter is ±10% around the capped exponential value.
		assert.LessOrEqual(t, d, time.Duration(1.1*float64(time.Second)))
		assert.GreaterOrEqual(t, d, time.Duration(0.9*float64(100*time.Millisecond)))
	}
}

func TestRecoverable_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"503", &statusError{code: 503}, true},
		{"500", &statusError{code: 500}, true},
		{"429", &statusError{code: 429}, true},
		{"404", &statusError{code: 404}, false},
		{"400", &statusError{code: 400}, false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"unclassified", errors.New("something odd"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Recoverable(tt.err))
		})
	}
}

type classifiedError struct {
	recoverable bool
}

func (e *classifiedError) Error() string {
	return "classified"
}

func (e *classifiedError) Recoverable() bool {
	return e.recoverable
}

func TestRecoverable_ClassifierTakesPrecedence(t *testing.T) {
	assert.False(t, Recoverable(&classifiedError{recoverable: false}))
	assert.True(t, Recoverable(&classifiedError{recoverable: true}))
}
