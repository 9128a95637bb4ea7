// Package errors provides centralized sentinel errors for the application.
//
// Naming conventions:
//   - Exported errors (Err*) are for callers that need errors.Is checks
//   - Sentinels are variables, never inline errors.New calls at use sites
//   - Wrap with fmt.Errorf("...: %w", err) to add context
package errors

import "errors"

// Store errors.
var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateItem indicates the (channel id, external id) tuple already exists.
	ErrDuplicateItem = errors.New("duplicate item")

	// ErrRevisionConflict indicates a conditional item update lost a race.
	ErrRevisionConflict = errors.New("revision conflict")
)

// Worker control errors.
var (
	// ErrWorkerLatched indicates the worker stopped after repeated failures
	// and requires a manual restart.
	ErrWorkerLatched = errors.New("worker latched after repeated failures")

	// ErrWorkerStopped indicates an operation was rejected because the worker
	// is not running.
	ErrWorkerStopped = errors.New("worker stopped")
)

// Provider errors.
var (
	// ErrCircuitBreakerOpen indicates the circuit breaker has tripped.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

	// ErrNoProviderAvailable indicates every provider in a registry chain failed.
	ErrNoProviderAvailable = errors.New("no provider available")

	// ErrEmptyResponse indicates an empty response from an upstream service.
	ErrEmptyResponse = errors.New("empty response")

	// ErrMalformedResponse indicates an upstream response that could not be parsed.
	ErrMalformedResponse = errors.New("malformed response")
)

// Connector errors.
var (
	// ErrInvalidConfig indicates a channel configuration failed validation.
	ErrInvalidConfig = errors.New("invalid channel config")

	// ErrUnknownKind indicates an unsupported connector kind.
	ErrUnknownKind = errors.New("unknown connector kind")

	// ErrHTTPStatus indicates a non-success HTTP status from an upstream.
	ErrHTTPStatus = errors.New("unexpected http status")
)

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
