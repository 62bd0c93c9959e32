// Package errs defines the error-kind vocabulary shared across the core
// components. Handlers map a Kind to an HTTP status; callers never need to
// inspect Go error types directly.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the broad category of a failure, independent of which
// component raised it.
type Kind string

const (
	KindValidation       Kind = "ValidationError"
	KindNotFound         Kind = "NotFound"
	KindAuth             Kind = "AuthError"
	KindRemoteUnavailable Kind = "RemoteUnavailable"
	KindDecrypt          Kind = "DecryptError"
	KindStateConflict    Kind = "StateConflict"
	KindInternal         Kind = "Internal"
)

// Error is the common error type returned by core components. It carries a
// stable Kind plus a human-readable message, and optionally wraps a cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err, defaulting to KindInternal if err is not
// (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to the status code spec.md §7 assigns it.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuth:
		return http.StatusUnauthorized
	case KindStateConflict:
		return http.StatusConflict
	case KindRemoteUnavailable:
		return http.StatusServiceUnavailable
	case KindDecrypt, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
