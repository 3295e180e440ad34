// Package errors provides coded application errors shared across the
// approvals service. Codes map 1:1 onto HTTP statuses at the handler layer
// and onto the business error taxonomy everywhere else.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code classifies an application error.
type Code string

const (
	ErrCodeValidation    Code = "validation"
	ErrCodeConflict      Code = "conflict"
	ErrCodeUnauthorized  Code = "unauthorized"
	ErrCodeNotFound      Code = "not_found"
	ErrCodeConfiguration Code = "configuration"
	ErrCodeInternal      Code = "internal"
)

// Error is a coded application error.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return Newf(ErrCodeNotFound, "%s not found: %s", resource, id)
}

// InvalidInput reports a malformed or missing input field.
func InvalidInput(field, message string) *Error {
	return Newf(ErrCodeValidation, "invalid %s: %s", field, message)
}

// Conflict reports a state conflict (already decided, stale revision,
// duplicate active execution).
func Conflict(message string) *Error {
	return New(ErrCodeConflict, message)
}

// Unauthorized reports that the actor cannot perform the action.
func Unauthorized(message string) *Error {
	return New(ErrCodeUnauthorized, message)
}

// Configuration reports invalid tenant workflow configuration.
func Configuration(message string) *Error {
	return New(ErrCodeConfiguration, message)
}

// CodeOf extracts the code from an error, defaulting to ErrCodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps an error code to an HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case ErrCodeValidation, ErrCodeConfiguration:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
