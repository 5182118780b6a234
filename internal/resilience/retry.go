package resilience

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryPolicy retries a call with deterministic exponential backoff. It holds
// no state between invocations; each Execute computes its own delay sequence.
// No jitter is applied so the delay before attempt k is exactly
// min(InitialDelay*ExponentialBase^(k-2), MaxDelay).
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialDelay:    time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2,
	}
}

// Delay returns the pause taken before attempt number attempt (2-based; there
// is no delay before the first attempt).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	base := p.ExponentialBase
	if base <= 0 {
		base = 2
	}
	d := float64(p.InitialDelay) * math.Pow(base, float64(attempt-2))
	if d >= float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Execute calls fn up to MaxAttempts times. Errors from non-final attempts are
// logged and swallowed; the final attempt's error is returned unchanged. The
// backoff sleep observes ctx, so cancellation interrupts a waiting retry.
func (p RetryPolicy) Execute(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := p.Delay(attempt)
			log.Warn().
				Int("attempt", attempt-1).
				Dur("delay", delay).
				Err(lastErr).
				Msg("attempt failed, retrying after backoff")
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
	}

	log.Error().Int("attempts", attempts).Err(lastErr).Msg("all retry attempts failed")
	return lastErr
}
