// Package errs defines the client's error-kind taxonomy. Every error
// surfaced as a bad chunk on a stream, or returned from a blocking call,
// wraps one of these kinds so callers can errors.As into it regardless of
// which subsystem produced it.
package errs

import (
	"errors"
	"fmt"
)

// Kind names one of the client's error categories. It is not a Go type
// name — callers switch on it via (*Error).Kind() rather than on the
// concrete Go type, so new subsystems can reuse an existing kind.
type Kind string

const (
	KindNetwork  Kind = "network"
	KindTLS      Kind = "tls"
	KindProtocol Kind = "protocol"
	KindTimeout  Kind = "timeout"
	KindCache    Kind = "cache"
	KindJSONPath Kind = "jsonpath"
	KindSecurity Kind = "security"
)

// Error is the concrete error type for all client-originated failures.
type Error struct {
	kind    Kind
	op      string
	target  string
	cause   error
	message string
}

// New constructs an *Error with no wrapped cause.
func New(kind Kind, op, message string) *Error {
	return &Error{kind: kind, op: op, message: message}
}

// Wrap constructs an *Error wrapping cause.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{kind: kind, op: op, cause: cause, message: cause.Error()}
}

// WithTarget attaches a target (URL, connection ID, certificate subject...)
// for diagnostics and returns the same *Error for chaining.
func (e *Error) WithTarget(target string) *Error {
	e.target = target
	return e
}

// Kind reports which category this error belongs to.
func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Error() string {
	if e.target != "" {
		return fmt.Sprintf("%s %s: %s [%s]", e.op, e.target, e.message, e.kind)
	}
	return fmt.Sprintf("%s: %s [%s]", e.op, e.message, e.kind)
}

func (e *Error) Unwrap() error { return e.cause }

// IsKind reports whether err wraps an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.kind == kind
}
