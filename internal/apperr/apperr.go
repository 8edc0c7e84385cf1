// Package apperr defines the typed error taxonomy shared by every service and
// handler. Services attach detail/cause to one of the predefined values; the
// HTTP layer serializes them with WriteError.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the application error shape. Code is stable and machine-readable,
// Message is safe to show to a caller, Err is the internal cause (logs only).
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is match on the stable code, so wrapped copies produced by
// WithDetail/WithCause still compare equal to the predefined value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithDetail returns a copy with caller-facing detail attached.
// The predefined values are never mutated.
func (e *Error) WithDetail(detail string) *Error {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithDetailf is WithDetail with formatting.
func (e *Error) WithDetailf(format string, args ...any) *Error {
	return e.WithDetail(fmt.Sprintf(format, args...))
}

// WithCause returns a copy carrying the internal cause.
func (e *Error) WithCause(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// WithMessage returns a copy with a different caller-facing message.
func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

// FromError converts any error into *Error. Unknown errors become INTERNAL
// with the original preserved as cause.
func FromError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal.WithCause(err)
}

// Predefined taxonomy values. One per failure class; services derive copies.
var (
	InvalidArgument = &Error{
		Code:       "INVALID_ARGUMENT",
		Message:    "The request contains malformed or missing fields.",
		HTTPStatus: http.StatusBadRequest,
	}

	Unauthenticated = &Error{
		Code:       "UNAUTHENTICATED",
		Message:    "Authentication failed.",
		HTTPStatus: http.StatusUnauthorized,
	}

	PermissionDenied = &Error{
		Code:       "PERMISSION_DENIED",
		Message:    "You do not have permission to perform this action.",
		HTTPStatus: http.StatusForbidden,
	}

	NotFound = &Error{
		Code:       "NOT_FOUND",
		Message:    "The requested resource was not found.",
		HTTPStatus: http.StatusNotFound,
	}

	AlreadyExists = &Error{
		Code:       "ALREADY_EXISTS",
		Message:    "The resource already exists.",
		HTTPStatus: http.StatusConflict,
	}

	FailedPrecondition = &Error{
		Code:       "FAILED_PRECONDITION",
		Message:    "The operation cannot run in the current state.",
		HTTPStatus: http.StatusPreconditionFailed,
	}

	ResourceExhausted = &Error{
		Code:       "RESOURCE_EXHAUSTED",
		Message:    "Too many requests.",
		HTTPStatus: http.StatusTooManyRequests,
	}

	Internal = &Error{
		Code:       "INTERNAL",
		Message:    "Internal error.",
		HTTPStatus: http.StatusInternalServerError,
	}
)
