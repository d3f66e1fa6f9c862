// Package resilience provides error classification and a shared retry
// envelope for the outbound provider calls made by the enrichment pipeline.
package resilience

import (
	"errors"
	"net/http"
	"strings"

	"github.com/scholaris/paper-enrichment-service/internal/domain"
)

// Class sorts failures into the two categories the retry loop understands.
type Class int

const (
	// Transient failures are temporary (network timeouts, rate limits,
	// provider 5xx responses) and should be retried with exponential backoff.
	Transient Class = iota

	// Permanent failures are non-recoverable (bad input, auth failures,
	// provider 4xx responses). Retrying cannot help.
	Permanent
)

// String returns a human-readable name for the class.
func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// transientSubstrings are error message substrings that indicate a transient
// failure when the error is not already classified by a structured error type.
var transientSubstrings = []string{
	"timeout",
	"network",
	"connection refused",
	"connection reset",
	"no such host",
	"rate limit",
	"rate_limit",
	"service unavailable",
	"temporary",
	"deadline exceeded",
	"i/o timeout",
}

// permanentSubstrings indicate a permanent failure.
// Substrings are chosen to avoid false positives: "unauthorized" instead of
// "auth" (which would match the author metadata this service handles),
// "invalid_input"/"invalid request"/"invalid parameter" instead of bare
// "invalid".
var permanentSubstrings = []string{
	"unauthorized",
	"authentication failed",
	"authorization failed",
	"forbidden",
	"bad_request",
	"bad request",
	"not_found",
	"not found",
	"invalid_input",
	"invalid request",
	"invalid parameter",
	"validation",
}

// Classify inspects err and returns its Class.
//
// Classification priority:
//  1. Nil errors — Permanent (no-op; callers should not retry nil)
//  2. External API errors carrying an HTTP status — 408/429/5xx transient, other 4xx permanent
//  3. Domain sentinel errors — ErrRateLimited, ErrInvalidInput, etc.
//  4. Error message substring matching (transient checked first for fail-safe bias)
//  5. Default: Transient (safer to retry than to fail)
func Classify(err error) Class {
	if err == nil {
		return Permanent
	}

	// 1. Check structured provider errors by HTTP status.
	var apiErr *domain.ExternalAPIError
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode >= 500:
			return Transient
		case apiErr.StatusCode >= 400:
			return Permanent
		}
	}

	// 2. Check domain sentinel errors.
	if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrServiceUnavailable) {
		return Transient
	}
	if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrForbidden) || errors.Is(err, domain.ErrSubmissionRejected) {
		return Permanent
	}

	// 3. Fall back to message substring matching.
	// Transient substrings checked before permanent for fail-safe bias:
	// if in doubt, retry is safer than giving up.
	msg := strings.ToLower(err.Error())

	for _, sub := range transientSubstrings {
		if strings.Contains(msg, sub) {
			return Transient
		}
	}

	for _, sub := range permanentSubstrings {
		if strings.Contains(msg, sub) {
			return Permanent
		}
	}

	// 4. Default: treat unknown errors as transient (safer to retry).
	return Transient
}
