// Package retry provides a generic operation retrier with exponential
// backoff, jitter, and error classification.
//
// Transient failures (network timeouts, throttling, 5xx responses) are
// retried up to a configured attempt budget; permanent failures (4xx other
// than 429) abort immediately. Either way the caller receives a structured
// error carrying the attempt count and a recoverable flag, so it can decide
// whether offering a retry to the user makes sense.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/evidentia/custody/internal/logger"
)

// Policy holds retry settings for an operation.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration

	// Multiplier scales the delay between consecutive attempts.
	Multiplier float64

	// OnRetry, if set, is invoked before each backoff sleep.
	OnRetry func(label string, attempt int, delay time.Duration, err error)
}

// DefaultPolicy returns the retry policy used for part transfers.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

// ExhaustedError is returned when an operation ran out of attempts or hit a
// permanent failure. It wraps the last underlying error.
type ExhaustedError struct {
	Label       string
	Attempts    int
	Recoverable bool
	Err         error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Label, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// delay returns the backoff duration before the given attempt (1-based),
// jittered by ±10%.
func (p Policy) delay(attempt int) time.Duration {
	backoff := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		backoff *= p.Multiplier
	}
	if backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}

	// ±10% jitter spreads out synchronized retries.
	jittered := backoff * (0.9 + 0.2*rand.Float64())
	return time.Duration(jittered)
}

// Execute runs op, retrying recoverable failures per the policy.
//
// The label identifies the operation in logs and errors. Context
// cancellation is honored while sleeping between attempts and surfaces as a
// non-recoverable ExhaustedError.
func Execute(ctx context.Context, policy Policy, label string, op func(context.Context) error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var attempt int
	for {
		attempt++

		err := op(ctx)
		if err == nil {
			return nil
		}

		recoverable := Recoverable(err)
		if !recoverable || attempt >= policy.MaxAttempts {
			return &ExhaustedError{
				Label:       label,
				Attempts:    attempt,
				Recoverable: recoverable,
				Err:         err,
			}
		}

		delay := policy.delay(attempt)
		logger.Warn("operation failed, retrying",
			"label", label,
			"attempt", attempt,
			"maxAttempts", policy.MaxAttempts,
			"delay", delay,
			"error", err)

		if policy.OnRetry != nil {
			policy.OnRetry(label, attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &ExhaustedError{
				Label:       label,
				Attempts:    attempt,
				Recoverable: false,
				Err:         ctx.Err(),
			}
		case <-timer.C:
		}
	}
}
