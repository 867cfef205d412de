package transport

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/tools"
)

// Error is a classified transport-level failure: the call never
// produced a tool result.
type Error struct {
	Kind    tools.ErrorKind
	Message string
	cause   error
}

// NewError creates a classified transport error.
func NewError(kind tools.ErrorKind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError classifies an underlying error.
func WrapError(kind tools.ErrorKind, cause error, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		cause:   cause,
	}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// ToolError is a failure reported by the tool itself: the call reached
// the backend and executed, but the tool returned an error. It is passed
// through to the agent as a normal Error result.
type ToolError struct {
	Message string
}

func NewToolError(message string) *ToolError {
	return &ToolError{Message: message}
}

func (e *ToolError) Error() string {
	return e.Message
}

// Classify maps an error returned by a transport to an ErrorKind.
// Context deadline expiry is a Timeout regardless of transport kind;
// unclassified errors fall back to the provided kind.
func Classify(err error, fallback tools.ErrorKind) tools.ErrorKind {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.Kind
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return tools.ErrToolExecution
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return tools.ErrTimeout
	}
	return fallback
}
