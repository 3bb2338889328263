// Package mxlerr defines the error-kind taxonomy shared by every internal
// package and re-exported at the public API boundary (spec §7). Kinds, not
// types: callers distinguish failures by calling KindOf(err), never by type
// assertion on a concrete error.
package mxlerr

import "errors"

// Kind classifies a failure the way the public API promises to, regardless
// of which internal package raised it.
type Kind int

const (
	Unknown Kind = iota
	InvalidArgument
	FlowNotFound
	FlowInvalid
	OutOfRangeTooEarly
	OutOfRangeTooLate
	NotReady
	TimedOut
	PermissionDenied
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case FlowNotFound:
		return "FlowNotFound"
	case FlowInvalid:
		return "FlowInvalid"
	case OutOfRangeTooEarly:
		return "OutOfRangeTooEarly"
	case OutOfRangeTooLate:
		return "OutOfRangeTooLate"
	case NotReady:
		return "NotReady"
	case TimedOut:
		return "TimedOut"
	case PermissionDenied:
		return "PermissionDenied"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type carried across every internal package
// boundary: a Kind for programmatic dispatch, the failing Op for context,
// and the wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with the given kind and op, wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err's Kind matches k, unwrapping through the chain.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// KindOf extracts the Kind from err, or Unknown if err isn't an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
