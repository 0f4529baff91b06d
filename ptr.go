// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"unsafe"

	"github.com/rudogc/gc/internal/cell"
	"github.com/rudogc/gc/internal/heap"
	"github.com/rudogc/gc/internal/roots"
	"github.com/rudogc/gc/internal/typeinfo"
)

// Ptr is a strong managed reference to a value of type T, the
// public surface of spec §6's "construct from value; clone; drop;
// equality by address; raw-address probe; strong/weak conversion;
// cell introspection."
//
// Ptr has no finalizer and no destructor of its own: Go gives user
// code no hook to run when a value stops being referenced, so a Ptr
// must be released explicitly with Release, the same explicit-lifetime
// discipline roots.Guard and heap.DetachCurrent already use elsewhere
// in this collector. An unreleased Ptr pins its cell on the owning
// goroutine's shadow stack forever, the Ptr analog of those other
// leak hazards.
type Ptr[T any] struct {
	c       *cell.Cell
	slot    int
	onStack bool
}

// Register associates a trace and finalize function with T, so future
// New[T] calls (and Of[T]-derived descriptors) know how to walk and
// destroy a T's managed fields. Call this once, typically from an
// init function, before any Ptr[T] is constructed; types with no
// managed fields need not call it; New[T] synthesizes a trace-nothing
// descriptor automatically.
func Register[T any](trace func(t *T, visit func(unsafe.Pointer)), finalize func(t *T)) {
	typeinfo.Register[T](trace, finalize)
}

// New allocates a managed T initialized to v and returns a strong
// reference to it. Allocation failure (page/region exhaustion) is a
// recoverable, propagated error (spec §7), never a panic.
func New[T any](v T) (Ptr[T], error) {
	info := typeinfo.Of[T]()
	h := heap.Current()
	c, err := h.Allocate(info)
	if err != nil {
		return Ptr[T]{}, err
	}
	*(*T)(c.Payload()) = v
	notifyAllocation(int64(info.Size))
	slot := roots.CurrentShadowStack().Push(c)
	return Ptr[T]{c: c, slot: slot, onStack: true}, nil
}

// Value returns a pointer to the referenced T, valid until Release.
func (p Ptr[T]) Value() *T { return (*T)(p.c.Payload()) }

// Clone produces a second strong reference to the same cell, bumping
// the strong count (spec §5: "no implicit suspension inside ...
// clone" — IncStrong is a lock-free atomic add) and pushing a new
// shadow-stack entry so the clone has its own independently-releasable
// root.
func (p Ptr[T]) Clone() Ptr[T] {
	p.c.IncStrong()
	slot := roots.CurrentShadowStack().Push(p.c)
	return Ptr[T]{c: p.c, slot: slot, onStack: true}
}

// Release drops this strong reference: pops the shadow-stack root and
// decrements the strong count. Reaching zero does not itself reclaim
// the cell — a cyclic structure needs the tracing collector to prove
// unreachability — but it does notify the trigger policy (spec §4.9).
//
// Release panics if called twice on the same Ptr value, the same
// double-release discipline roots.Guard.Release enforces.
func (p *Ptr[T]) Release() {
	if !p.onStack {
		panic("gc: Ptr released twice")
	}
	roots.CurrentShadowStack().Pop(p.slot)
	p.onStack = false
	if p.c.DecStrong() {
		instance().pol.NotifyStrongZero()
	}
}

// Equal reports whether p and o reference the same cell (spec §6,
// "equality by address").
func (p Ptr[T]) Equal(o Ptr[T]) bool { return p.c == o.c }

// Addr exposes the cell's address for diagnostics and hashing (spec
// §6, "raw-address probe"). The address is stable for the cell's
// lifetime (this collector never compacts, spec §1 non-goals) but
// carries no meaning once the cell is dead.
func (p Ptr[T]) Addr() uintptr { return uintptr(unsafe.Pointer(p.c)) }

// Dead reports whether the underlying cell has been swept (spec §6,
// cell introspection: "dead?").
func (p Ptr[T]) Dead() bool { return p.c.Dead() }

// StrongCount / WeakCount are best-effort introspection snapshots
// (spec §6, cell introspection: "ref count?").
func (p Ptr[T]) StrongCount() int64 { return p.c.StrongCount() }
func (p Ptr[T]) WeakCount() int64   { return p.c.WeakCount() }

// Downgrade produces a Weak reference to the same cell (spec §6,
// "strong/weak conversion").
func (p Ptr[T]) Downgrade() Weak[T] {
	p.c.IncWeak()
	return Weak[T]{c: p.c}
}

// Child returns a Ptr sharing p's cell, suitable for storing as a
// field inside another managed value's payload. Unlike New, Clone, or
// Downgrade's Upgrade, Child does not push a shadow-stack root: a
// field's reachability comes from whoever traces the containing cell
// (the Register'd Trace function calling Visit on it), not from an
// independent root of its own. The returned Ptr must never be
// Released — it was never rooted, so there is nothing to pop — and
// Release panics if called on it; let the field simply be overwritten
// or let its containing cell become unreachable and swept.
func Child[T any](p Ptr[T]) Ptr[T] {
	return Ptr[T]{c: p.c}
}

// Visit reports p as a child reference from within a Trace callback
// registered via Register. This is the manual counterpart to the
// derive-macro-generated Trace implementations out of scope for this
// collector (see internal/typeinfo's package doc): any type with a Ptr
// field calls Visit once per such field inside its trace function.
//
//	gc.Register[node](func(n *node, visit func(unsafe.Pointer)) {
//	    for _, child := range n.children {
//	        gc.Visit(visit, child)
//	    }
//	}, nil)
func Visit[T any](visit func(unsafe.Pointer), p Ptr[T]) {
	if p.c == nil {
		return
	}
	visit(unsafe.Pointer(p.c))
}
