// Package apperr defines the error kinds surfaced by the HTTP layer.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure for transport mapping.
type Kind string

const (
	Conflict         Kind = "conflict"
	NotFound         Kind = "not_found"
	InvalidCode      Kind = "invalid_code"
	Expired          Kind = "expired"
	Forbidden        Kind = "forbidden"
	Unauthorized     Kind = "unauthorized"
	Validation       Kind = "validation_error"
	GenerationFailed Kind = "generation_failed"
	PayloadTooLarge  Kind = "payload_too_large"
	Upstream         Kind = "upstream_error"
	RateLimited      Kind = "rate_limited"
	Internal         Kind = "internal_error"
)

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		Conflict, NotFound, InvalidCode, Expired, Forbidden, Unauthorized, Validation,
		GenerationFailed, PayloadTooLarge, Upstream, RateLimited, Internal,
	}
}

// Error carries a kind, a client-safe message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same kind and message, so sentinel
// values declared with New work with errors.Is after wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

// New returns an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap attaches a kind and message to a cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf reports the kind of err, or Internal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// MessageOf returns the client-safe message. Unclassified errors never leak.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Message
	}
	return "internal error"
}

// Status maps a kind to its HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case Conflict:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	case InvalidCode, Validation:
		return http.StatusBadRequest
	case Expired:
		return http.StatusGone
	case Forbidden:
		return http.StatusForbidden
	case Unauthorized:
		return http.StatusUnauthorized
	case GenerationFailed, Upstream:
		return http.StatusBadGateway
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
