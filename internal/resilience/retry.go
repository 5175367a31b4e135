package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy describes an exponential backoff schedule with jitter.
type RetryPolicy struct {
	// InitialDelay is the delay before the first retry. Default: 1s.
	InitialDelay time.Duration

	// Multiplier scales the delay after each attempt. Default: 2.
	Multiplier float64

	// MaxDelay caps the computed delay. Default: 30s.
	MaxDelay time.Duration

	// Jitter is the fraction of the computed delay added as random spread,
	// uniform in [0, Jitter*delay). Default: 0.1.
	Jitter float64

	// MaxAttempts is the total number of attempts including the first.
	// Default: 4.
	MaxAttempts int
}

// DefaultRetryPolicy returns the policy used for provider calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxDelay:     30 * time.Second,
		Jitter:       0.1,
		MaxAttempts:  4,
	}
}

// withDefaults fills zero fields with the default schedule.
func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.InitialDelay <= 0 {
		p.InitialDelay = d.InitialDelay
	}
	if p.Multiplier <= 1 {
		p.Multiplier = d.Multiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Jitter < 0 {
		p.Jitter = d.Jitter
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	return p
}

// Delay returns the jittered backoff before retry number attempt (0-based,
// i.e. attempt 0 is the delay after the first failure).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	delay := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= p.Multiplier
		if delay >= float64(p.MaxDelay) {
			delay = float64(p.MaxDelay)
			break
		}
	}
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		delay += rand.Float64() * p.Jitter * delay
	}
	return time.Duration(delay)
}

// Retry runs fn up to p.MaxAttempts times, sleeping the policy's jittered
// backoff between attempts. Permanent errors (per [IsTransient]) abort
// immediately; so does ctx cancellation, which wins over the remaining
// budget.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(p.Delay(attempt - 1))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry aborted after %d attempts: %w", attempt, ctx.Err())
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("retry budget exhausted after %d attempts: %w", p.MaxAttempts, lastErr)
}

// RetryWithResult is [Retry] for functions returning a value. Package-level
// because Go does not support method-level type parameters.
func RetryWithResult[R any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (R, error)) (R, error) {
	var out R
	err := Retry(ctx, p, func(ctx context.Context) error {
		var innerErr error
		out, innerErr = fn(ctx)
		return innerErr
	})
	return out, err
}
