package llm

import (
	"errors"
	"fmt"
)

// ErrorClass is the coarse Transient/Permanent split §4.3 and §7 require
// processors to act on.
type ErrorClass string

const (
	ClassTransient ErrorClass = "transient"
	ClassPermanent ErrorClass = "permanent"
)

// ErrorKind is a finer-grained classification, useful for logging and
// metrics even though only Class drives retry behavior.
type ErrorKind string

const (
	KindAuth           ErrorKind = "auth"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindContextLength  ErrorKind = "context_length"
	KindRateLimited    ErrorKind = "rate_limited"
	KindUnavailable    ErrorKind = "unavailable"
	KindUnknown        ErrorKind = "unknown"
)

var transientKinds = map[ErrorKind]bool{
	KindRateLimited: true,
	KindUnavailable: true,
}

// ProviderError describes a failure returned by an LLM vendor adapter. It
// crosses the llm/Client boundary so processors can apply §4.3's retry
// classification without depending on any vendor SDK type.
type ProviderError struct {
	provider  string
	operation string
	httpCode  int
	kind      ErrorKind
	code      string
	message   string
	requestID string
	cause     error
}

// NewProviderError constructs a ProviderError. provider and kind are required.
func NewProviderError(provider, operation string, httpCode int, kind ErrorKind, code, message, requestID string, cause error) *ProviderError {
	if provider == "" {
		panic("llm: provider is required")
	}
	if kind == "" {
		kind = KindUnknown
	}
	return &ProviderError{
		provider: provider, operation: operation, httpCode: httpCode,
		kind: kind, code: code, message: message, requestID: requestID, cause: cause,
	}
}

func (e *ProviderError) Provider() string   { return e.provider }
func (e *ProviderError) Operation() string  { return e.operation }
func (e *ProviderError) HTTPCode() int      { return e.httpCode }
func (e *ProviderError) Kind() ErrorKind    { return e.kind }
func (e *ProviderError) Code() string       { return e.code }
func (e *ProviderError) Message() string    { return e.message }
func (e *ProviderError) RequestID() string  { return e.requestID }

// Class reports whether retrying this call may succeed.
func (e *ProviderError) Class() ErrorClass {
	if transientKinds[e.kind] {
		return ClassTransient
	}
	return ClassPermanent
}

func (e *ProviderError) Error() string {
	op := e.operation
	if op == "" {
		op = "complete"
	}
	msg := e.message
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	if msg == "" {
		msg = "provider error"
	}
	if e.code != "" {
		msg = e.code + ": " + msg
	}
	return fmt.Sprintf("llm: %s %s(%s): %s", e.provider, e.kind, op, msg)
}

func (e *ProviderError) Unwrap() error { return e.cause }

// AsProviderError returns the first ProviderError in err's chain, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
