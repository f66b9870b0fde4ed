package core

import "errors"

// Failure taxonomy shared across the engine. Callers classify with
// errors.Is; wrapping sites attach detail with fmt.Errorf("...: %w", ...).
var (
	// ErrContextUnavailable means the upstream fetch needed to assemble
	// context failed.
	ErrContextUnavailable = errors.New("context unavailable")

	// ErrContextTooLarge means the content exceeds the configured budget
	// even after truncation.
	ErrContextTooLarge = errors.New("context too large")

	// ErrInvalidScopePrecondition means a conversation turn was attempted
	// in a scope whose mode-specific precondition does not hold.
	ErrInvalidScopePrecondition = errors.New("invalid scope precondition")

	// ErrUpstreamTimeout means an upstream call exceeded its bounded
	// timeout.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrProviderUnavailable means the analysis provider could not be
	// reached or returned a server-side failure.
	ErrProviderUnavailable = errors.New("analysis provider unavailable")

	// ErrProviderRateLimited means the analysis provider rejected the call
	// for rate-limit reasons.
	ErrProviderRateLimited = errors.New("analysis provider rate limited")

	// ErrContentRejected means the analysis provider refused the content.
	ErrContentRejected = errors.New("content rejected by provider")

	// ErrCacheUnavailable means the cache store could not be reached.
	// Caching is an optimization: resolvers degrade to direct computation.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// Upstream source client failures.
	ErrAuthInvalid = errors.New("auth token invalid")
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("rate limited")
)

// Retryable reports whether a failure is worth a bounded retry. Hard
// failures (bad token, missing resource, oversized context) are not.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrUpstreamTimeout),
		errors.Is(err, ErrProviderUnavailable),
		errors.Is(err, ErrProviderRateLimited),
		errors.Is(err, ErrRateLimited):
		return true
	}
	return false
}
