package ratelimit

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// HTTPStatuser is implemented by errors that carry an upstream HTTP status.
// The HTTP client's status error satisfies it.
type HTTPStatuser interface {
	HTTPStatus() int
}

// NonRetryable is implemented by errors that must never be requeued
// regardless of transport behavior (adapter parse failures, price-not-found).
type NonRetryable interface {
	Retryable() bool
}

// Retryable classifies a job failure. Network-level errors (no response,
// reset connections, timeouts) and HTTP 408, 429 and 5xx are retryable;
// other 4xx, caller cancellation, and adapter-marked failures are not.
// Unknown errors default to retryable, matching the transport-error-first
// shape of upstream failures.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var nr NonRetryable
	if errors.As(err, &nr) {
		return nr.Retryable()
	}

	var st HTTPStatuser
	if errors.As(err, &st) {
		code := st.HTTPStatus()
		switch {
		case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
			return true
		case code >= 500:
			return true
		default:
			return false
		}
	}

	// Per-attempt deadline or transport-level timeout.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return true
}
