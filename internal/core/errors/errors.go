// Package errors provides centralized error definitions for the application.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - Unexported errors (err*): Use for internal package errors
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import "errors"

// Circuit breaker errors.
var (
	// ErrCircuitBreakerOpen indicates the circuit breaker has tripped and requests are blocked.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

// Lookup errors.
var (
	// ErrNotFound is a generic not found error.
	ErrNotFound = errors.New("not found")

	// ErrMessageNotFound indicates a chat message could not be found.
	ErrMessageNotFound = errors.New("message not found")

	// ErrProductNotFound indicates a product could not be found.
	ErrProductNotFound = errors.New("product not found")

	// ErrRunNotFound indicates a run record could not be found.
	ErrRunNotFound = errors.New("run not found")
)

// Run coordination errors.
var (
	// ErrRunRejected indicates the coordinator refused to admit a run.
	// It is a control-flow outcome, not a failure.
	ErrRunRejected = errors.New("run rejected")

	// ErrRunNotRunning indicates a finalize was attempted on a run that is no longer running.
	ErrRunNotRunning = errors.New("run is not running")
)

// Pipeline errors.
var (
	// ErrAlreadyConsumed indicates at least one candidate message is already processed.
	ErrAlreadyConsumed = errors.New("message already consumed")

	// ErrDuplicateProduct indicates a product with the same source fingerprint exists.
	ErrDuplicateProduct = errors.New("duplicate product")

	// ErrMissingRequiredFields indicates a draft lacks price, sizes or images.
	ErrMissingRequiredFields = errors.New("missing required product fields")

	// ErrInvalidGroup indicates a group lacks a text-typed or image-eligible member.
	ErrInvalidGroup = errors.New("invalid message group")
)

// Client and connection errors.
var (
	// ErrClientNotInitialized indicates a client has not been initialized.
	ErrClientNotInitialized = errors.New("client not initialized")

	// ErrClientDisabled indicates a client or feature is disabled.
	ErrClientDisabled = errors.New("client disabled")
)

// Response and parsing errors.
var (
	// ErrEmptyResponse indicates an empty response was received.
	ErrEmptyResponse = errors.New("empty response")

	// ErrMalformedResponse indicates a response could not be parsed.
	ErrMalformedResponse = errors.New("malformed response")
)

// Validation errors.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidID indicates an invalid identifier.
	ErrInvalidID = errors.New("invalid id")

	// ErrMissingCredentials indicates a required credential is not configured.
	ErrMissingCredentials = errors.New("missing credentials")
)

// Rate limiting and throttling errors.
var (
	// ErrRateLimited indicates rate limiting was triggered.
	ErrRateLimited = errors.New("rate limited")

	// ErrRetriesExhausted indicates all retry attempts failed.
	ErrRetriesExhausted = errors.New("max retries exceeded")
)

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
