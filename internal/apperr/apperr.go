// Package apperr defines the error taxonomy shared by every fund request
// operation. Each error carries a stable Kind that maps one-to-one onto an
// HTTP status, and a message that is safe to show to callers.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is a machine-readable error category.
type Kind string

const (
	KindUnauthenticated        Kind = "UNAUTHENTICATED"
	KindForbidden              Kind = "FORBIDDEN"
	KindNotFound               Kind = "NOT_FOUND"
	KindValidation             Kind = "VALIDATION"
	KindInvalidStateTransition Kind = "INVALID_STATE_TRANSITION"
	KindAuthentication         Kind = "AUTHENTICATION"
	KindPersistence            Kind = "PERSISTENCE"
	KindConflict               Kind = "CONFLICT"
	KindRateLimited            Kind = "RATE_LIMITED"
)

// Error is the typed error returned across package boundaries.
type Error struct {
	Kind     Kind
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Kind == KindPersistence {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithMetadata creates an error carrying structured context.
func WithMetadata(kind Kind, message string, metadata map[string]string) *Error {
	return &Error{Kind: kind, Message: message, Metadata: metadata}
}

// Wrap creates an error of the given kind around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinels for errors.Is comparisons. Only the Kind is compared.
var (
	ErrUnauthenticated        = New(KindUnauthenticated, "authentication required")
	ErrForbidden              = New(KindForbidden, "forbidden")
	ErrNotFound               = New(KindNotFound, "not found")
	ErrValidation             = New(KindValidation, "validation failed")
	ErrInvalidStateTransition = New(KindInvalidStateTransition, "invalid state transition")
	ErrAuthentication         = New(KindAuthentication, "invalid credentials")
	ErrPersistence            = New(KindPersistence, "persistence failure")
	ErrConflict               = New(KindConflict, "conflict")
)

// Validation is shorthand for a validation error on a single field.
func Validation(field, message string) *Error {
	return WithMetadata(KindValidation, message, map[string]string{"field": field})
}

// Persistence wraps a store failure.
func Persistence(op string, cause error) *Error {
	return Wrap(KindPersistence, op, cause)
}

// KindOf extracts the Kind of err. Errors outside the taxonomy are reported
// as persistence failures so they never leak as a client error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}

// HTTPStatus maps a Kind onto its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthenticated, KindAuthentication:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidStateTransition, KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message a caller may see. Persistence failures
// are reduced to an opaque message.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindPersistence {
		return e.Message
	}
	return "internal error"
}
