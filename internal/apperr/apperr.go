// Package apperr provides the structured error type shared by the ledger, the
// catalog and the HTTP layer.
package apperr

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown             Code = "UNKNOWN"
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeInvalidRating       Code = "INVALID_RATING"
	CodeNotFound            Code = "NOT_FOUND"
	CodeDuplicateRating     Code = "DUPLICATE_RATING"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	CodePersistence         Code = "PERSISTENCE_ERROR"
	CodeUnauthorized        Code = "UNAUTHORIZED"
)

// Class groups codes by what the caller should do about them.
type Class string

const (
	// ClassInvalidInput means the request must be corrected before retrying.
	ClassInvalidInput Class = "invalid_input"
	// ClassRetry means the same request may succeed if sent again.
	ClassRetry Class = "retry"
	// ClassUnavailable means a dependency is failing.
	ClassUnavailable Class = "unavailable"
)

// Class maps the code to its caller-facing class.
func (c Code) Class() Class {
	switch c {
	case CodeInvalidArgument, CodeInvalidRating, CodeNotFound, CodeDuplicateRating, CodeUnauthorized:
		return ClassInvalidInput
	case CodeConcurrencyConflict:
		return ClassRetry
	default:
		return ClassUnavailable
	}
}

// HTTPStatus maps the code to an HTTP status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument, CodeInvalidRating:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateRating, CodeConcurrencyConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusServiceUnavailable
	}
}

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs)
	Metadata map[string]string // Context for message templating
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Retryable reports whether the caller may resend the same request.
func (e *Error) Retryable() bool {
	return e.Code.Class() == ClassRetry
}

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithMetadata creates an error with metadata for message templating.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// Wrap creates an error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the code from err, or CodeUnknown if err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
