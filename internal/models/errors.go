package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind identifies a class of coordinator failure.
type ErrorKind string

const (
	// KindValidation rejects malformed or disallowed request input.
	KindValidation ErrorKind = "validation"
	// KindNotFound means the token or comment is absent or already reaped.
	KindNotFound ErrorKind = "not_found"
	// KindExpired means the row's deadline has passed.
	KindExpired ErrorKind = "expired"
	// KindTokenMismatch means the correlation token does not match the row.
	KindTokenMismatch ErrorKind = "token_mismatch"
	// KindAlreadyBound means the row was claimed by a different identity.
	KindAlreadyBound ErrorKind = "already_bound"
	// KindUnauthorized means the ownership check failed.
	KindUnauthorized ErrorKind = "unauthorized"
	// KindUpstreamFailure means the OAuth provider failed after retries.
	KindUpstreamFailure ErrorKind = "upstream_failure"
	// KindStoreFailure means the underlying database failed.
	KindStoreFailure ErrorKind = "store_failure"
)

// Error is the application error carried across the service boundary.
// Handlers map Kind to an HTTP status; Internal kinds never leak detail.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindExpired:
		return http.StatusGone
	case KindTokenMismatch, KindAlreadyBound:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusForbidden
	case KindUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Internal reports whether the error detail must stay server-side and the
// client only gets a generic message.
func (e *Error) Internal() bool {
	return e.Kind == KindStoreFailure || e.Kind == KindUpstreamFailure
}

func NewValidation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func NewNotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func NewExpired(message string) *Error {
	return &Error{Kind: KindExpired, Message: message}
}

func NewTokenMismatch(message string) *Error {
	return &Error{Kind: KindTokenMismatch, Message: message}
}

func NewAlreadyBound(message string) *Error {
	return &Error{Kind: KindAlreadyBound, Message: message}
}

func NewUnauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func NewUpstreamFailure(message string, err error) *Error {
	return &Error{Kind: KindUpstreamFailure, Message: message, Err: err}
}

func NewStoreFailure(err error) *Error {
	return &Error{Kind: KindStoreFailure, Message: "store operation failed", Err: err}
}

// IsKind reports whether err is (or wraps) an Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
