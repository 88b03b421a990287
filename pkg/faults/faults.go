// Package faults defines the closed set of error kinds the service can
// surface and the mapping from each kind to an HTTP status. Handlers and
// services classify failures with Wrap/New; the API boundary converts them
// with HTTPStatus exactly once.
package faults

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a failure cause.
type Kind string

const (
	KindAdmissionDenied       Kind = "ADMISSION_DENIED"
	KindCredentialUnavailable Kind = "CREDENTIAL_UNAVAILABLE"
	KindUpstreamAPIError      Kind = "UPSTREAM_API_ERROR"
	KindAnalysisFailed        Kind = "ANALYSIS_FAILED"
	KindInvalidInput          Kind = "INVALID_INPUT"
	KindNotFound              Kind = "NOT_FOUND"
	KindTimeout               Kind = "TIMEOUT"
	KindInternal              Kind = "INTERNAL"
)

// Error carries a Kind plus a client-safe message. The wrapped cause is kept
// for logs and errors.Is/As but is never rendered to clients.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a fault with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a fault with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. A nil cause yields a nil fault.
func Wrap(kind Kind, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from any error in the chain, defaulting to
// KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ClientMessage returns the client-safe message for err. Unclassified errors
// collapse to a generic message so internals never leak.
func ClientMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus maps a Kind to exactly one HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindAdmissionDenied:
		return http.StatusTooManyRequests
	case KindCredentialUnavailable, KindUpstreamAPIError, KindAnalysisFailed:
		return http.StatusBadGateway
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
