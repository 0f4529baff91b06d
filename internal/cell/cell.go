// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cell defines the header every managed object carries (spec
// §3, "Cell"): the reference and weak counts, the tri-color mark
// word, the generation and dead flags, and the back-pointer to the
// owning page. Cell is the unit the rest of the collector (heap,
// mark, barrier, sweep) operates on; user payloads are stored
// immediately after a Cell in the same allocation (see
// internal/heap).
package cell

import (
	"sync/atomic"
	"unsafe"

	"github.com/rudogc/gc/internal/typeinfo"
)

// Color is the tri-color mark state (spec §4.6).
type Color uint8

const (
	White Color = iota // unreached this cycle
	Gray               // reached, not yet scanned
	Black              // reached and scanned
)

// Generation tags which remembered-set discipline applies to a cell's
// pointer fields (spec §4.5).
type Generation uint8

const (
	Young Generation = iota
	Old
)

// Cell is the fixed-size header prefixing every managed allocation.
//
// Flags is a single atomic word packing color (2 bits), generation (1
// bit), and dead (1 bit) so that a strong-count-reaches-zero fast
// path and a concurrent mark-worker bit-flip never tear each other's
// writes; see flags.go for the bit layout. Strong and Weak are
// separate words because they're bumped far more often than Flags
// and from different call sites (holder construction/destruction vs.
// the mark/sweep machinery), so keeping them un-packed avoids
// spurious contention between unrelated operations on the same cell.
type Cell struct {
	Strong int64 // strong holder count; 0 => no reachable-from-stack root
	Weak   int64 // weak holder count; keeps memory mapped even once Strong hits 0

	flags uint32 // see flags.go

	SizeClass int32 // index into the heap's size-class table, -1 for large objects
	Page      unsafe.Pointer // *heap.Page, untyped here to avoid an import cycle

	Type *typeinfo.Info
}

// Payload returns a pointer to the user data immediately following
// the Cell header in the same allocation.
func (c *Cell) Payload() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(c), unsafe.Sizeof(*c))
}

// IncStrong bumps the strong holder count. Called from Ptr
// construction/clone; lock-free per spec §5 (no suspension inside
// clone).
func (c *Cell) IncStrong() int64 {
	return atomic.AddInt64(&c.Strong, 1)
}

// DecStrong decrements the strong count and reports whether it
// reached zero. Reaching zero does not by itself reclaim the cell
// (invariant 1 in spec §3: the mark engine must also have proved it
// unreachable, for cyclic structures); it does make the cell eligible
// for the fast non-cyclic reclaim path and triggers a policy
// notification (spec §4.9).
func (c *Cell) DecStrong() (reachedZero bool) {
	n := atomic.AddInt64(&c.Strong, -1)
	if n < 0 {
		panic("cell: strong count went negative")
	}
	return n == 0
}

// IncWeak / DecWeak mirror IncStrong/DecStrong for the weak count.
func (c *Cell) IncWeak() int64 { return atomic.AddInt64(&c.Weak, 1) }

func (c *Cell) DecWeak() (reachedZero bool) {
	n := atomic.AddInt64(&c.Weak, -1)
	if n < 0 {
		panic("cell: weak count went negative")
	}
	return n == 0
}

// StrongCount / WeakCount are best-effort snapshots for introspection
// (spec §6, "cell introspection").
func (c *Cell) StrongCount() int64 { return atomic.LoadInt64(&c.Strong) }
func (c *Cell) WeakCount() int64   { return atomic.LoadInt64(&c.Weak) }
