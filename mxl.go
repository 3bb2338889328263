// Package mxl is the public facade of the Media eXchange Layer: a
// zero-copy, low-latency IPC substrate for real-time media production on
// a single host (spec §1). Producers and consumers exchange discrete
// grains or continuous samples through a shared "domain" directory on
// shared-memory ring buffers keyed by absolute time.
//
// Everything under internal/ implements one piece of the design (time &
// rate, the wait/wake primitive, shared-memory segments, the flow
// manager, the discrete and continuous data carriers, the domain
// watcher); this package wires them together behind the conceptual
// surface of spec §6.3.
package mxl

import (
	"fmt"

	"github.com/mxllabs/mxl/internal/mxlerr"
	"github.com/mxllabs/mxl/internal/mxllog"
)

// ErrorKind classifies every failure the public API can report (spec
// §7). It is a type alias for the internal taxonomy so callers never
// need to import internal/mxlerr directly.
type ErrorKind = mxlerr.Kind

const (
	Unknown            = mxlerr.Unknown
	InvalidArgument    = mxlerr.InvalidArgument
	FlowNotFound       = mxlerr.FlowNotFound
	FlowInvalid        = mxlerr.FlowInvalid
	OutOfRangeTooEarly = mxlerr.OutOfRangeTooEarly
	OutOfRangeTooLate  = mxlerr.OutOfRangeTooLate
	NotReady           = mxlerr.NotReady
	TimedOut           = mxlerr.TimedOut
	PermissionDenied   = mxlerr.PermissionDenied
)

// Error is the concrete error type every public API call returns on
// failure: a Kind for programmatic dispatch (spec §7 policy: "Exceptions
// raised inside the core never propagate across the public API; they
// are caught at each entry point and mapped to the taxonomy"), the
// failing operation name, and the wrapped cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("mxl: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("mxl: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from err, whether err is an *Error or an
// error raised by one of the internal packages, or Unknown if err carries
// no kind.
func KindOf(err error) ErrorKind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return mxlerr.KindOf(err)
}

// wrap converts an internal *mxlerr.Error (or any other error) raised by
// one of the internal packages into the public *Error, at the API
// boundary spec §7 describes. A nil err returns nil.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if ie, ok := err.(*mxlerr.Error); ok {
		return &Error{Kind: ie.Kind, Op: op, Err: ie.Err}
	}
	return &Error{Kind: mxlerr.Unknown, Op: op, Err: err}
}

// InitLogging applies MXL_LOG_LEVEL to the package-wide structured
// logger (spec §6.4, §9 "Global state": process-wide, idempotent).
// Library users embedding mxl in a larger process may call this once at
// startup; it is also called automatically by NewInstance.
func InitLogging() { mxllog.Init() }
