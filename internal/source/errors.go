package source

import (
	"fmt"

	"github.com/quotefeed/quotefeed/internal/pair"
)

// PriceNotFoundError indicates the upstream has no price for the pair
// (unknown symbol, empty response). Never retried, never cached.
type PriceNotFoundError struct {
	Source Name
	Pair   pair.Pair
}

func (e *PriceNotFoundError) Error() string {
	return fmt.Sprintf("%s: price not found for %s", e.Source, e.Pair)
}

func (e *PriceNotFoundError) Retryable() bool { return false }

// UnauthorizedError indicates a missing or rejected API key.
type UnauthorizedError struct {
	Source Name
	Reason string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("%s: unauthorized: %s", e.Source, e.Reason)
}

func (e *UnauthorizedError) Retryable() bool { return false }

// MalformedError indicates the upstream responded but the body did not
// match the expected shape (JSON parse failure, missing field).
type MalformedError struct {
	Source Name
	Err    error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s: malformed upstream response: %v", e.Source, e.Err)
}

func (e *MalformedError) Unwrap() error   { return e.Err }
func (e *MalformedError) Retryable() bool { return false }

// APIError indicates an application-level error reported inside a 2xx body
// (e.g. OKX code != "0", Kraken error array).
type APIError struct {
	Source Name
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: upstream API error: %s", e.Source, e.Msg)
}

func (e *APIError) Retryable() bool { return false }

// NotFoundError indicates an unknown source name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown source %q", e.Name)
}

// DisabledError indicates the source exists but is disabled by config.
type DisabledError struct {
	Source Name
}

func (e *DisabledError) Error() string {
	return fmt.Sprintf("source %s is disabled", e.Source)
}
