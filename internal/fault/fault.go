// Package fault defines the bounded error taxonomy exposed to RPC callers.
// Handlers map every internal failure to exactly one Kind plus a
// non-sensitive message; raw error detail stays in the logs.
package fault

import (
	"context"
	"errors"
	"fmt"

	"github.com/soyeahso/docent/internal/llm"
)

// Kind classifies a failure for the caller.
type Kind int

const (
	// KindInternal is the unclassified fallback.
	KindInternal Kind = iota
	// KindInvalidInput marks malformed or oversized requests. User-correctable.
	KindInvalidInput
	// KindUnavailable marks a required collaborator being down, or an
	// admission denial. Retryable by the caller.
	KindUnavailable
	// KindTimeout marks a configured processing ceiling being exceeded.
	// Retryable with smaller scope.
	KindTimeout
	// KindProvider marks a generation or embedding provider failure. Retryable.
	KindProvider
)

// Code returns the wire status code for a kind.
func (k Kind) Code() int {
	switch k {
	case KindInvalidInput:
		return 400
	case KindUnavailable:
		return 503
	case KindTimeout:
		return 504
	case KindProvider:
		return 502
	default:
		return 500
	}
}

// String returns the stable name for a kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	case KindProvider:
		return "provider_error"
	default:
		return "internal"
	}
}

// Error is a classified failure carrying a caller-safe message.
type Error struct {
	Kind    Kind
	Message string
	Err     error // underlying cause, logged but never echoed
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with a caller-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an underlying error, keeping it for logging.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Invalid is shorthand for a KindInvalidInput error.
func Invalid(message string) *Error { return New(KindInvalidInput, message) }

// Classify maps an arbitrary error to its taxonomy kind. Typed faults keep
// their kind; provider errors and context deadlines are recognized;
// everything else is internal.
func Classify(err error) Kind {
	if err == nil {
		return KindInternal
	}

	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}

	var pe *llm.ProviderError
	if errors.As(err, &pe) {
		return KindProvider
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindUnavailable
	}

	return KindInternal
}

// SafeMessage returns the message to echo to a caller for err. Typed faults
// carry their own message; anything else gets a generic one for its kind.
func SafeMessage(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}

	switch Classify(err) {
	case KindProvider:
		return "generation provider failed"
	case KindTimeout:
		return "processing exceeded the configured time limit"
	case KindUnavailable:
		return "a required backend is unavailable"
	default:
		return "internal error"
	}
}
