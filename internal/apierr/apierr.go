// Package apierr defines the coordinator's error taxonomy and its mapping
// onto HTTP status codes.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the HTTP layer.
type Kind string

const (
	KindAuth        Kind = "AUTH"
	KindValidation  Kind = "VALIDATION"
	KindRateLimited Kind = "RATE_LIMITED"
	KindNotFound    Kind = "NOT_FOUND"
	KindUpstream    Kind = "UPSTREAM"
	KindInternal    Kind = "INTERNAL"
)

// Error is a classified error. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error

	// RetryAfter is set on KindRateLimited, in whole seconds.
	RetryAfter int
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// RateLimited builds a lockout error carrying the remaining seconds.
func RateLimited(retryAfter int) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Message:    fmt.Sprintf("Too many failed attempts. Try again in %ds", retryAfter),
		RetryAfter: retryAfter,
	}
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Status maps err onto an HTTP status code.
func Status(err error) int {
	switch KindOf(err) {
	case KindAuth:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing text for err. Upstream and validation
// errors include the wrapped cause so the dashboard can show what went wrong.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	if (e.Kind == KindUpstream || e.Kind == KindValidation) && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}
