// Package apperr provides typed application errors that map onto HTTP
// statuses and metric labels.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Type is the error category used for responses and metrics.
type Type string

const (
	TypeValidation   Type = "validation"
	TypeUnauthorized Type = "unauthorized"
	TypeForbidden    Type = "forbidden"
	TypeNotFound     Type = "not_found"
	TypeRateLimited  Type = "rate_limited"
	// TypeUnavailable marks a failed authoritative write. Nothing was
	// committed and the client may retry.
	TypeUnavailable Type = "unavailable"
	TypeInternal    Type = "internal"
)

type Error struct {
	Type    Type
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeUnauthorized:
		return http.StatusUnauthorized
	case TypeForbidden:
		return http.StatusForbidden
	case TypeNotFound:
		return http.StatusNotFound
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (e *Error) Retryable() bool {
	return e.Type == TypeUnavailable || e.Type == TypeRateLimited
}

// WithContext attaches a diagnostic field. Context is logged, never sent to
// clients.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func newError(t Type, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

func Validation(message string) *Error   { return newError(TypeValidation, message, nil) }
func Unauthorized(message string) *Error { return newError(TypeUnauthorized, message, nil) }
func Forbidden(message string) *Error    { return newError(TypeForbidden, message, nil) }
func NotFound(message string) *Error     { return newError(TypeNotFound, message, nil) }
func RateLimited(message string) *Error  { return newError(TypeRateLimited, message, nil) }

func Unavailable(message string, cause error) *Error {
	return newError(TypeUnavailable, message, cause)
}

func Internal(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

// From converts any error into an *Error, wrapping unknown errors as
// internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("internal server error", err)
}

// Is reports whether err carries an *Error of type t.
func Is(err error, t Type) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

type Response struct {
	Error     string `json:"error"`
	Type      Type   `json:"type"`
	Retryable bool   `json:"retryable"`
}

func (e *Error) ToResponse() Response {
	return Response{Error: e.Message, Type: e.Type, Retryable: e.Retryable()}
}
