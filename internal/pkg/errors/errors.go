// Package errors defines the application error taxonomy. Every error that
// crosses the service boundary carries an HTTP status code and a stable
// reason string; the HTTP layer maps them in one place.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ApplicationError is a tagged error variant with an HTTP status, a stable
// machine-readable reason, and a human message.
type ApplicationError struct {
	Code     int
	Reason   string
	Message  string
	Metadata map[string]string

	cause error
}

func (e *ApplicationError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *ApplicationError) Unwrap() error { return e.cause }

// WithCause returns a copy of the error wrapping an underlying cause.
func (e *ApplicationError) WithCause(cause error) *ApplicationError {
	cloned := e.clone()
	cloned.cause = cause
	return cloned
}

// WithMetadata returns a copy of the error carrying extra key/value metadata.
func (e *ApplicationError) WithMetadata(md map[string]string) *ApplicationError {
	cloned := e.clone()
	cloned.Metadata = md
	return cloned
}

// WithMessagef returns a copy of the error with a formatted message.
func (e *ApplicationError) WithMessagef(format string, args ...any) *ApplicationError {
	cloned := e.clone()
	cloned.Message = fmt.Sprintf(format, args...)
	return cloned
}

func (e *ApplicationError) clone() *ApplicationError {
	cloned := *e
	if e.Metadata != nil {
		md := make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		cloned.Metadata = md
	}
	return &cloned
}

func newError(code int, reason, message string) *ApplicationError {
	return &ApplicationError{Code: code, Reason: reason, Message: message}
}

func BadRequest(reason, message string) *ApplicationError {
	return newError(http.StatusBadRequest, reason, message)
}

func NotFound(reason, message string) *ApplicationError {
	return newError(http.StatusNotFound, reason, message)
}

func Conflict(reason, message string) *ApplicationError {
	return newError(http.StatusConflict, reason, message)
}

func UnprocessableEntity(reason, message string) *ApplicationError {
	return newError(http.StatusUnprocessableEntity, reason, message)
}

func TooManyRequests(reason, message string) *ApplicationError {
	return newError(http.StatusTooManyRequests, reason, message)
}

func InternalServer(reason, message string) *ApplicationError {
	return newError(http.StatusInternalServerError, reason, message)
}

func ServiceUnavailable(reason, message string) *ApplicationError {
	return newError(http.StatusServiceUnavailable, reason, message)
}

// FromError extracts an ApplicationError; arbitrary errors come back as an
// internal server error so nothing leaks through the boundary untagged.
func FromError(err error) *ApplicationError {
	if err == nil {
		return nil
	}
	appErr := new(ApplicationError)
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalServer("INTERNAL", err.Error()).WithCause(err)
}

// Code returns the HTTP status carried by the error, or 500 for untagged
// errors and 200 for nil.
func Code(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return FromError(err).Code
}

// Reason returns the stable reason string carried by the error, if any.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	appErr := new(ApplicationError)
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return ""
}

// Is reports whether err carries the same reason as target.
func Is(err error, target *ApplicationError) bool {
	if err == nil || target == nil {
		return false
	}
	return Reason(err) == target.Reason
}
