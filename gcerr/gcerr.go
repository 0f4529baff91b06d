// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gcerr defines the error kinds the collector can report to a
// caller (see spec §7: invalid-use, exhaustion, bounds, poison).
//
// Upgrade-on-dead, resolve-on-unresolvable, and allocation-under-OOM
// are NOT errors here: they are recoverable outcomes and are modeled
// as zero values or booleans at the call site, never as a returned
// error. Everything in this package is either a caller-recoverable
// error (InvalidUse, Exhaustion) or unconditionally fatal (Bounds,
// Poison trigger a panic/process abort at the call site; the values
// here exist so the abort path can carry a diagnostic).
package gcerr

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Kind classifies an error returned or fataled by the collector.
type Kind int

const (
	// InvalidUse covers requests the API contract forbids but that
	// do not indicate memory corruption, e.g. resolving a
	// cross-thread handle whose origin thread has exited.
	InvalidUse Kind = iota
	// Exhaustion covers resource exhaustion the caller can react
	// to, e.g. failure to acquire a fresh page from the OS.
	Exhaustion
	// Bounds covers a fixed-capacity structure (a handle scope)
	// being asked to hold more than it was sized for. Bounds
	// violations panic; they are never silently truncated.
	Bounds
	// Poison covers detected corruption of a core invariant (a
	// non-monotonic dead-flag transition, a barrier invariant
	// violation). Poison is always fatal: the process aborts
	// rather than risk reclaiming live data.
	Poison
)

func (k Kind) String() string {
	switch k {
	case InvalidUse:
		return "invalid-use"
	case Exhaustion:
		return "exhaustion"
	case Bounds:
		return "bounds"
	case Poison:
		return "poison"
	default:
		return "unknown"
	}
}

// Error is the concrete error type produced by this package. It
// carries a Kind so callers can switch on the failure category with
// errors.As, and wraps an underlying cause (if any) with
// golang.org/x/xerrors so the chain survives fmt's %w / errors.Is.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "heap.AcquirePage"
	Msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("gc: %s: %s: %s", e.Op, e.Msg, e.err)
	}
	return fmt.Sprintf("gc: %s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.err }

// sentinels identify error categories for errors.Is.
var (
	ErrInvalidUse = xerrors.New("gc: invalid use")
	ErrExhaustion = xerrors.New("gc: resource exhaustion")
	ErrBounds     = xerrors.New("gc: bounds exceeded")
	ErrPoison     = xerrors.New("gc: invariant violated")
)

func sentinelFor(k Kind) error {
	switch k {
	case InvalidUse:
		return ErrInvalidUse
	case Exhaustion:
		return ErrExhaustion
	case Bounds:
		return ErrBounds
	case Poison:
		return ErrPoison
	default:
		return ErrInvalidUse
	}
}

// New constructs an *Error of the given kind, wrapping cause (if
// non-nil) so that errors.Is(result, sentinelFor(kind)) holds.
func New(kind Kind, op, msg string, cause error) *Error {
	sentinel := sentinelFor(kind)
	var wrapped error
	if cause != nil {
		wrapped = xerrors.Errorf("%w: %v", sentinel, cause)
	} else {
		wrapped = sentinel
	}
	return &Error{Kind: kind, Op: op, Msg: msg, err: wrapped}
}

// Fatal panics with a Poison-kind *Error carrying the diagnostic. It
// is for code that has observed a core invariant broken; continuing
// would risk reclaiming a live object, so there is no recovery path.
// No code in this module calls it.
func Fatal(op, msg string, cause error) {
	e := New(Poison, op, msg, cause)
	panic(e)
}

// BoundsPanic reports a fixed-capacity structure overflow. Unlike
// Fatal, this indicates a caller error (asked for too many slots),
// not heap corruption, but spec §7 requires it fail loudly rather
// than silently truncate, so it also panics.
func BoundsPanic(op, msg string) {
	panic(New(Bounds, op, msg, nil))
}
