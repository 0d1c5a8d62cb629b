// Package errs provides the unified error type used across sqlbridge.
//
// The session, the engine drivers, the export sink and the HTTP gateway all
// wrap their native errors into *errs.Error before returning them. Callers
// use the Is* predicates instead of importing engine-specific packages.
//
// Usage:
//
//	// In an engine driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindTimeout, "statement timed out", pgErr)
//
//	// In a caller, check the kind:
//	if errs.IsNotFound(err) {
//	    fmt.Println("no records")
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing engine-specific codes.
type ErrKind int

const (
	ErrKindUnknown           ErrKind = iota
	ErrKindNotFound                  // no rows, no object, no source
	ErrKindConnectionFailed          // cannot reach the backend
	ErrKindTimeout                   // context deadline / cancellation
	ErrKindQueryFailed               // SQL or storage operation error
	ErrKindInvalidInput              // bad arguments from the caller
	ErrKindPermissionDenied          // access denied / auth failure
	ErrKindConflict                  // unique or foreign key violation
	ErrKindNotConnected              // session used before Connect
	ErrKindDriverUnavailable         // no driver registered for the engine
	ErrKindConfigFailed              // connection settings could not be built
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindConflict:
		return "conflict"
	case ErrKindNotConnected:
		return "not_connected"
	case ErrKindDriverUnavailable:
		return "driver_unavailable"
	case ErrKindConfigFailed:
		return "config_failed"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all sqlbridge subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result
// (no rows, missing object, unknown source, …).
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a backend operation failure.
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsConflict reports whether err is a constraint violation.
func IsConflict(err error) bool {
	return KindOf(err) == ErrKindConflict
}

// IsNotConnected reports whether err came from a session with no open connection.
func IsNotConnected(err error) bool {
	return KindOf(err) == ErrKindNotConnected
}

// IsDriverUnavailable reports whether no driver is registered for the requested engine.
func IsDriverUnavailable(err error) bool {
	return KindOf(err) == ErrKindDriverUnavailable
}

// IsConfigFailed reports whether connection settings could not be assembled.
func IsConfigFailed(err error) bool {
	return KindOf(err) == ErrKindConfigFailed
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
