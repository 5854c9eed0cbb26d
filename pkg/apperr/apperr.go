// Package apperr defines the error taxonomy shared by every service in the
// gateway and its mapping onto HTTP responses.
//
// Client-caused failures (4xx kinds) carry their specific message through to
// the response body. Server-side failures (5xx kinds) are scrubbed at the
// boundary: the client sees a generic message while the cause is logged.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for status mapping and clients.
type Kind string

const (
	KindValidation      Kind = "validation_error"
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindTooManyRequests Kind = "too_many_requests"
	KindInternal        Kind = "internal_error"
	KindConnection      Kind = "connection_error"
	KindExternalService Kind = "external_service_error"
)

// Error is the canonical application error. Status is derived from Kind
// unless set explicitly.
type Error struct {
	Status  int    `json:"status"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`

	// cause is the wrapped internal error, never serialized.
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error with the default status for its kind.
func New(kind Kind, message string) *Error {
	return &Error{Status: statusFor(kind), Kind: kind, Message: message}
}

// Wrap is New with an underlying cause attached for logging.
func Wrap(kind Kind, message string, cause error) *Error {
	e := New(kind, message)
	e.cause = cause
	return e
}

func Validation(message string) *Error   { return New(KindValidation, message) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }
func Forbidden(message string) *Error    { return New(KindForbidden, message) }
func NotFound(message string) *Error     { return New(KindNotFound, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }

// Internal wraps a server-side failure. The message shown to clients is
// always the generic one; cause carries the detail for logs.
func Internal(cause error) *Error {
	return Wrap(KindInternal, "internal server error", cause)
}

// External wraps a failure in a downstream collaborator.
func External(cause error) *Error {
	return Wrap(KindExternalService, "external service error", cause)
}

func statusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	case KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// From coerces any error into an *Error. Unknown errors become internal
// errors so raw causes never leak to clients.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}

// body is the wire shape written to clients. 5xx messages are replaced
// with a generic string regardless of what the Error carries.
type body struct {
	Status  int    `json:"status"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Write renders err as a JSON response following the scrub policy.
func Write(w http.ResponseWriter, err error) {
	ae := From(err)

	msg := ae.Message
	if ae.Status >= http.StatusInternalServerError {
		msg = "internal server error"
		if ae.Kind == KindExternalService {
			msg = "external service error"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.Status)
	_ = json.NewEncoder(w).Encode(body{Status: ae.Status, Kind: string(ae.Kind), Message: msg})
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}
