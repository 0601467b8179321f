// Package hosterrors defines the typed error kinds surfaced by the runtime
// core, mirroring the error taxonomy of section 7 of the specification
// this module implements. Errors are plain Go values supporting
// errors.Is/errors.As through Unwrap, following the sentinel-chain
// convention the teacher codebase uses for tool errors.
package hosterrors

import (
	"errors"
	"fmt"
)

// Kind classifies a host error. Kinds are stable identifiers used by
// callers (including the gRPC transport) to branch on failure category
// without string-matching messages.
type Kind string

// Kind values, one per §7 of the specification.
const (
	KindToolNotFound         Kind = "tool_not_found"
	KindAbiMismatch          Kind = "abi_mismatch"
	KindChecksumMismatch     Kind = "checksum_mismatch"
	KindLibraryLoad          Kind = "library_load"
	KindInitFailed           Kind = "init_failed"
	KindInvalidInput         Kind = "invalid_input"
	KindInvalidPath          Kind = "invalid_path"
	KindCredentialError      Kind = "credential_error"
	KindDeserializationError Kind = "deserialization_error"
	KindGuardFailed          Kind = "guard_failed"
	KindEvalError            Kind = "eval_error"
	KindSessionConflict      Kind = "session_conflict"
	KindServiceUnavailable   Kind = "service_unavailable"
)

// Error is a structured host error: a stable Kind plus a human-readable
// message and optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New constructs an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error around an existing error, preserving it for
// errors.Is/As via Unwrap.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a Kind match: two *Error values are
// considered equal by errors.Is when their Kind fields match, regardless
// of message text.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// Of returns a sentinel *Error for kind with no message, useful as an
// errors.Is comparison target: errors.Is(err, hosterrors.Of(KindToolNotFound)).
func Of(kind Kind) *Error { return &Error{Kind: kind} }

// KindOf extracts the Kind of err if it is (or wraps) a *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// MessageOf extracts the raw Message of err if it is (or wraps) a *Error,
// and false otherwise. Unlike Error(), it omits the Kind prefix and any
// wrapped cause, so callers that already convey Kind separately (e.g. a
// guard's fail_message surfaced through Response.Kind) can report the
// message verbatim.
func MessageOf(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Message, true
	}
	return "", false
}
