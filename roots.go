// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"unsafe"

	"github.com/rudogc/gc/internal/roots"
)

// HandleScope is a stack-scoped arena for pinning cells across calls
// that don't themselves hold a Ptr (spec §4.4.2, §6: "open/close
// handle scope; per-scope slot allocation").
type HandleScope struct {
	s *roots.HandleScope
}

// OpenScope opens a new handle scope nested under the calling
// goroutine's currently open scope, if any.
func OpenScope() HandleScope {
	return HandleScope{s: roots.OpenScope()}
}

// Close closes the scope, releasing all of its slots. Scopes must
// close in LIFO order; closing out of order panics (see
// internal/roots.CloseScope).
func (h HandleScope) Close() {
	roots.CloseScope(h.s)
}

// HandleSlot references one pinned handle-scope entry.
type HandleSlot[T any] struct {
	s roots.Slot
}

// Pin records p's cell in this scope and returns a slot that keeps it
// rooted until the scope closes, independent of p's own shadow-stack
// entry (a caller may Release its Ptr immediately after Pin and the
// value stays alive for the scope's duration).
func Pin[T any](h HandleScope, p Ptr[T]) HandleSlot[T] {
	return HandleSlot[T]{s: h.s.NewSlot(p.c)}
}

// Get returns a Ptr to the pinned value. The returned Ptr is a fresh
// strong reference (bumping the strong count and pushing its own
// shadow-stack root) so it can outlive the handle scope if the caller
// releases it independently; Pin itself does not bump the strong
// count, since the scope's own slot is what keeps the cell rooted
// while open.
func (h HandleSlot[T]) Get() Ptr[T] {
	c := h.s.Get()
	c.IncStrong()
	slot := roots.CurrentShadowStack().Push(c)
	return Ptr[T]{c: c, slot: slot, onStack: true}
}

// RootGuard is a scoped registration in the process-wide root set,
// the Go analog of the original crate's async-task root guard (spec
// §4.4: "process-wide root set to support async runtimes"). Wrap a
// managed reference captured by a spawned goroutine in a RootGuard for
// that goroutine's lifetime so it stays reachable even though it's no
// longer on the spawning goroutine's own shadow stack.
type RootGuard[T any] struct {
	g *roots.Guard
}

// RegisterRoot registers p's cell in the process-wide root set and
// returns a guard that unregisters it on Release (spec §6, "explicit
// root register/unregister").
//
// Hazard: if the goroutine holding a RootGuard panics or is abandoned
// without calling Release, the registration leaks, the same hazard
// roots.Guard documents — RootGuard deliberately has no finalizer.
func RegisterRoot[T any](p Ptr[T]) RootGuard[T] {
	return RootGuard[T]{g: roots.RegisterGuard(p.c)}
}

// Release unregisters the guard's cell. Calling Release twice panics.
func (g RootGuard[T]) Release() { g.g.Release() }

// VisitRegion treats every pointer-aligned word in [base, base+size)
// as a candidate managed address and roots whichever ones resolve to
// a live cell (spec §4.4.3, §6: "conservative region visit"). Use this
// for memory the trace protocol can't reach directly — state captured
// behind a type-erased closure, a C-style buffer, or any other opaque
// region a caller wants treated as a root source.
//
// Calling this outside of an in-progress cycle (between Snapshot and
// FinalMark) still shades matching cells gray and enqueues them; they
// simply sit on the worklist, harmlessly, until the next cycle's
// Marking phase drains it — a conservative scan is, by construction,
// never wrong to run early (spec §4.4: false positives are tolerated,
// false negatives are not).
func VisitRegion(base unsafe.Pointer, size uintptr) {
	eng := instance().sm.Engine()
	roots.ScanRegion(base, size, eng.EnqueueRoot)
}
