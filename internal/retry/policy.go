package retry

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Policy names a preset retry budget and classifier.
type Policy int

const (
	// PolicyAI governs language-model calls.
	PolicyAI Policy = iota
	// PolicyCommerce governs commerce-platform (Shopify) calls.
	PolicyCommerce
	// PolicyFetch governs outbound page fetches.
	PolicyFetch
)

func (p Policy) String() string {
	switch p {
	case PolicyAI:
		return "ai"
	case PolicyCommerce:
		return "commerce"
	case PolicyFetch:
		return "fetch"
	default:
		return "unknown"
	}
}

// FetchAttemptTimeout is the hard limit for a single page fetch.
const FetchAttemptTimeout = 30 * time.Second

// Preset returns the options for p.
func Preset(p Policy) Options {
	switch p {
	case PolicyAI:
		return DefaultOptions().Merge(Options{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    30 * time.Second,
			Multiplier:  2,
			ShouldRetry: RetryableAI,
		})
	case PolicyCommerce:
		return DefaultOptions().Merge(Options{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			Multiplier:  2,
			ShouldRetry: RetryableCommerce,
		})
	case PolicyFetch:
		return DefaultOptions().Merge(Options{
			MaxAttempts:    3,
			BaseDelay:      1 * time.Second,
			Multiplier:     2,
			AttemptTimeout: FetchAttemptTimeout,
			ShouldRetry:    RetryableFetch,
		})
	default:
		return DefaultOptions()
	}
}

// ExecutePolicy runs op with the preset for p, merged with overrides.
func ExecutePolicy[T any](ctx context.Context, p Policy, overrides Options, op func(ctx context.Context) (T, error)) Result[T] {
	return Execute(ctx, Preset(p).Merge(overrides), op)
}

// RetryableAI retries network failures, 5xx, 429 and timeouts. 401 and 403
// are fatal so credential or quota problems surface immediately.
func RetryableAI(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if status, ok := StatusCode(err); ok {
		switch {
		case status == http.StatusUnauthorized, status == http.StatusForbidden:
			return false
		case status == http.StatusTooManyRequests, isServerError(status):
			return true
		}
	}
	return IsNetworkError(err) || IsTimeout(err)
}

// RetryableCommerce retries network failures, 5xx and 429. 400, 401 and 403
// mean the request itself is wrong.
func RetryableCommerce(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if status, ok := StatusCode(err); ok {
		switch {
		case status == http.StatusBadRequest, status == http.StatusUnauthorized, status == http.StatusForbidden:
			return false
		case status == http.StatusTooManyRequests, status == http.StatusServiceUnavailable, isServerError(status):
			return true
		default:
			return false
		}
	}
	return IsNetworkError(err)
}

// RetryableFetch retries network failures, timeouts, 5xx and 429; other
// client errors such as 403 and 404 are final.
func RetryableFetch(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if status, ok := StatusCode(err); ok {
		return status == http.StatusTooManyRequests || isServerError(status)
	}
	return IsNetworkError(err) || IsTimeout(err)
}
