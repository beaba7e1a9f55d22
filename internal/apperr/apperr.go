// Package apperr defines the error taxonomy shared by all Tonebox components.
// Every failure that crosses a component boundary is wrapped into an *Error
// carrying a stable type tag, a human-readable message, and a retryable flag
// so clients know whether re-sending the same clientOpId is safe.
package apperr

import (
	"errors"
	"fmt"
)

// Type identifies the failure class. Values are stable wire tags.
type Type string

const (
	TypeValidation     Type = "validation_error"
	TypeNotFound       Type = "not_found"
	TypeConflict       Type = "conflict"
	TypeInvalidState   Type = "invalid_state"
	TypeTimeout        Type = "timeout"
	TypeTransientInfra Type = "transient_infra"
)

// Error is a classified application error.
type Error struct {
	Type      Type
	Message   string
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error { return e.cause }

// Validation rejects malformed input before any state change.
func Validation(format string, args ...any) *Error {
	return &Error{Type: TypeValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an absent playlist, track, session, or tag.
func NotFound(format string, args ...any) *Error {
	return &Error{Type: TypeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a duplicate mapping or a double-finalize.
func Conflict(format string, args ...any) *Error {
	return &Error{Type: TypeConflict, Message: fmt.Sprintf(format, args...)}
}

// InvalidState reports an operation against a session in the wrong lifecycle state.
func InvalidState(format string, args ...any) *Error {
	return &Error{Type: TypeInvalidState, Message: fmt.Sprintf(format, args...)}
}

// Timeout reports an expired time-boxed session or operation. Retryable: the
// timed-out work never settled, so re-issuing it is safe.
func Timeout(format string, args ...any) *Error {
	return &Error{Type: TypeTimeout, Message: fmt.Sprintf(format, args...), Retryable: true}
}

// TransientInfra wraps a storage or filesystem failure that the client may retry
// with the same idempotency token.
func TransientInfra(cause error, format string, args ...any) *Error {
	return &Error{
		Type:      TypeTransientInfra,
		Message:   fmt.Sprintf(format, args...),
		Retryable: true,
		cause:     cause,
	}
}

// From extracts the *Error from err's chain, or classifies it as transient
// infrastructure if it carries no taxonomy.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{
		Type:      TypeTransientInfra,
		Message:   "internal error",
		Retryable: true,
		cause:     err,
	}
}

// IsType reports whether err's chain contains an *Error of the given type.
func IsType(err error, t Type) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Type == t
}
