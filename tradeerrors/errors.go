// Package tradeerrors defines the error taxonomy shared across the core:
// validation, connection, parse, not-implemented and invariant-violation
// kinds (spec §7). Kinds classify failures; they are not meant to be
// compared against by type assertion outside this package — callers
// switch on the Kind field or use Is.
package tradeerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a core error for propagation-policy decisions: whether
// it is reported per-order, surfaces on the error stream, or aborts the
// scheduler.
type Kind string

const (
	// Validation: order fails admission. Reported per-order, never fatal.
	Validation Kind = "ValidationError"
	// Connection: transport lost or refused. Adapter disconnects, error
	// stream emits, Connect may be retried.
	Connection Kind = "ConnectionError"
	// Parse: malformed tick or wire message. Logged, offending item
	// dropped, processing continues.
	Parse Kind = "ParseError"
	// NotImplemented: unsupported query on a specific adapter. Surfaced
	// via the response envelope.
	NotImplemented Kind = "NotImplementedError"
	// Invariant: internal bug. The simulator emits it on its error
	// stream; its scheduler is not stopped and keeps delivering ticks.
	Invariant Kind = "InvariantViolation"
)

// Error is the concrete error value carrying a Kind plus a wrapped cause.
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

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is a *Error of the given Kind, unwrapping once.
func Is(err error, kind Kind) bool {
	te, ok := err.(*Error)
	if !ok {
		te, ok = errors.Unwrap(err).(*Error)
	}
	return ok && te.Kind == kind
}
