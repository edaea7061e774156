// Package retry provides the capped exponential backoff used inside
// provider plug-ins. Retrying is a plug-in concern: the lifecycle
// controller calls a provider exactly once per operation, and the plug-in
// decides which backend failures are worth further attempts.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/openberth/openberth/pkg/engine"
)

// Policy configures backoff between attempts against a provider backend.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration

	// ConflictDelay seeds the backoff when the error is a conflict.
	ConflictDelay time.Duration

	// ThrottledDelay seeds the backoff when the backend is throttling.
	ThrottledDelay time.Duration

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Defaults to engine.IsTransient.
	Retryable func(error) bool

	// Throttled recognizes backend throttling responses. Optional;
	// plug-ins supply it when their backend distinguishes throttling.
	Throttled func(error) bool
}

// DefaultPolicy returns the backoff policy plug-ins use unless they tune
// it.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      1 * time.Second,
		ConflictDelay:  2 * time.Second,
		ThrottledDelay: 5 * time.Second,
		MaxDelay:       1 * time.Minute,
	}
}

// Do invokes op until it succeeds, the error is not retryable, the
// attempts are exhausted, or ctx is cancelled. The last error is returned
// as-is so callers keep its classification.
func Do(ctx context.Context, policy Policy, op func(context.Context) error) error {
	policy = policy.withDefaults()

	var err error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err = op(ctx); err == nil {
			return nil
		}

		if !policy.retryable(err) {
			return err
		}

		// Don't wait after the last attempt
		if attempt >= policy.MaxAttempts-1 {
			break
		}

		select {
		case <-time.After(policy.backoff(attempt, err)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return err
}

// backoff calculates the delay before the next attempt: exponential from
// an error-class-specific base, capped, with jitter.
func (p Policy) backoff(attempt int, err error) time.Duration {
	baseDelay := p.BaseDelay

	// Use different base delays for different error types
	if p.Throttled != nil && p.Throttled(err) {
		baseDelay = p.ThrottledDelay
	} else if engine.IsConflict(err) {
		baseDelay = p.ConflictDelay
	}

	// Exponential backoff: delay = baseDelay * 2^attempt
	delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))

	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	// Add jitter (±25%)
	jitter := time.Duration(float64(delay) * 0.25)
	if jitter > 0 {
		delay = delay - jitter + time.Duration(rand.Int63n(int64(2*jitter)))
	}

	return delay
}

func (p Policy) withDefaults() Policy {
	defaults := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaults.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaults.BaseDelay
	}
	if p.ConflictDelay <= 0 {
		p.ConflictDelay = defaults.ConflictDelay
	}
	if p.ThrottledDelay <= 0 {
		p.ThrottledDelay = defaults.ThrottledDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaults.MaxDelay
	}
	return p
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return engine.IsTransient(err)
}
