package tool

import (
	"errors"
	"fmt"
)

// Error is a structured tool failure that preserves message and causal
// context while implementing the standard error interface, so it survives
// serialization into a ToolResult item and still supports errors.Is/As.
// Adapted from runtime/agent/toolerrors.ToolError, extended with Fatal to
// carry spec.md §4.4's outer fatal/domain distinction: a fatal Error aborts
// the Tool Processor's batch and becomes a Fail event; a non-fatal Error is
// embedded in the ToolResult and fed back to the model as a normal result.
type Error struct {
	Message string
	Cause   *Error
	Fatal   bool
}

// New constructs a domain Error with the provided message.
func New(message string) *Error {
	if message == "" {
		message = "tool error"
	}
	return &Error{Message: message}
}

// Fatalf constructs a fatal Error, aborting the enclosing tool-call batch.
func Fatalf(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Fatal: true}
}

// NewWithCause constructs a domain Error wrapping an underlying error.
func NewWithCause(message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Message: message, Cause: FromError(cause)}
}

// FromError converts an arbitrary error into an Error chain.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Message: err.Error(), Cause: FromError(errors.Unwrap(err))}
}

// Errorf formats according to a format specifier and returns a domain Error.
func Errorf(format string, args ...any) *Error {
	return New(fmt.Sprintf(format, args...))
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// NotFound is the structured domain error for an unresolved tool name
// (spec.md §4.4 point 2: "Unknown tool names produce a structured error
// result ... rather than failing the batch").
func NotFound(name string) *Error {
	return New(fmt.Sprintf("tool %q not found", name))
}
