package resilience

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholaris/paper-enrichment-service/internal/domain"
)

// Policy holds the retry configuration for one category of outbound call.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// BackoffMultiplier controls exponential growth of the backoff interval.
	BackoffMultiplier float64

	// MaxBackoff caps the backoff interval.
	MaxBackoff time.Duration

	// Jitter randomises each backoff within [backoff/2, backoff) so that
	// concurrent workers do not retry in lockstep.
	Jitter bool

	// Classify overrides the package-level classifier when set.
	Classify func(error) Class
}

// DefaultPolicy returns the retry policy applied to provider calls unless
// configuration overrides it: three attempts with backoff 2s, 4s capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		InitialBackoff:    2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Second,
	}
}

// backoffForAttempt computes the backoff duration after the given attempt (0-indexed).
func (p Policy) backoffForAttempt(attempt int) time.Duration {
	backoff := p.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * p.BackoffMultiplier)
		if backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
			break
		}
	}
	if p.Jitter {
		if half := backoff / 2; half > 0 {
			backoff = half + rand.N(half)
		}
	}
	return backoff
}

// RetriesExhaustedError reports that every attempt at an operation failed with
// a transient error. Cause is the error from the final attempt.
type RetriesExhaustedError struct {
	Op       string
	Attempts int
	Cause    error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts: %v", e.Op, e.Attempts, e.Cause)
}

// Unwrap exposes both the sentinel and the final cause so callers can match
// either with errors.Is.
func (e *RetriesExhaustedError) Unwrap() []error {
	return []error{domain.ErrRetriesExhausted, e.Cause}
}

// Do runs fn under policy p, retrying transient failures with exponential
// backoff. Permanent failures abort immediately without further attempts.
// Each failed attempt produces a structured log entry carrying the attempt
// number, classification and planned delay.
//
// When every attempt fails transiently, Do returns a *RetriesExhaustedError
// wrapping the final cause. Context cancellation stops the loop between
// attempts and during backoff waits.
func Do(ctx context.Context, p Policy, logger zerolog.Logger, op string, fn func(context.Context) error) error {
	classify := p.Classify
	if classify == nil {
		classify = Classify
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		// Never retry once the caller has gone away.
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if classify(err) == Permanent {
			logger.Warn().
				Str("operation", op).
				Int("attempt", attempt).
				Str("class", Permanent.String()).
				Err(err).
				Msg("permanent failure, aborting")
			return fmt.Errorf("%s: %w", op, err)
		}

		if attempt == p.MaxAttempts {
			break
		}

		backoff := p.backoffForAttempt(attempt - 1)
		logger.Warn().
			Str("operation", op).
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Str("class", Transient.String()).
			Dur("backoff", backoff).
			Err(err).
			Msg("transient failure, retrying")

		if err := waitForRetry(ctx, backoff); err != nil {
			return fmt.Errorf("%s: cancelled during retry backoff: %w", op, err)
		}
	}

	exhausted := &RetriesExhaustedError{Op: op, Attempts: p.MaxAttempts, Cause: lastErr}
	logger.Error().
		Str("operation", op).
		Int("attempts", p.MaxAttempts).
		Err(lastErr).
		Msg("retries exhausted")
	return exhausted
}

// waitForRetry waits for the backoff duration, respecting context cancellation.
func waitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
