package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the error type services return across the HTTP boundary. Status is
// the HTTP status the handler should respond with, Code a stable machine
// readable identifier.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Error taxonomy. Codes are stable; message details travel in Err.

func Validation(format string, args ...interface{}) *Error {
	return New(http.StatusUnprocessableEntity, "validation_error", fmt.Errorf(format, args...))
}

func NotFound(format string, args ...interface{}) *Error {
	return New(http.StatusNotFound, "not_found", fmt.Errorf(format, args...))
}

func Forbidden(format string, args ...interface{}) *Error {
	return New(http.StatusForbidden, "forbidden", fmt.Errorf(format, args...))
}

func Unauthorized(format string, args ...interface{}) *Error {
	return New(http.StatusUnauthorized, "unauthorized", fmt.Errorf(format, args...))
}

func InvalidTransition(format string, args ...interface{}) *Error {
	return New(http.StatusConflict, "invalid_transition", fmt.Errorf(format, args...))
}

func Conflict(format string, args ...interface{}) *Error {
	return New(http.StatusConflict, "conflict", fmt.Errorf(format, args...))
}

func StorageFailure(err error) *Error {
	return New(http.StatusBadGateway, "storage_failure", err)
}

func Internal(err error) *Error {
	return New(http.StatusInternalServerError, "internal_error", err)
}

// From converts any error into an *Error, passing through ones that already
// are and wrapping the rest as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}

// IsCode reports whether err carries the given stable code.
func IsCode(err error, code string) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}
