// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package roots

import (
	"github.com/rudogc/gc/internal/cell"
	"github.com/rudogc/gc/internal/heap"
)

// CrossThreadHandle is the relocation-stable reference of spec §3,
// §4.4: it carries a weak reference to its originating goroutine's
// control block plus the target cell, and resolves to a strong holder
// only when invoked from that same goroutine while the origin is
// still alive.
//
// This is the Go analog of the original crate's cross-thread Gc
// handle, built for an async runtime (tokio) to pass a managed
// reference into a spawned task and resolve it back on the thread
// that owns it (spec §C.2 in SPEC_FULL.md).
type CrossThreadHandle struct {
	origin   *heap.TCB
	cell     *cell.Cell
	released bool
}

// NewCrossThreadHandle captures the calling goroutine as origin and
// bumps the target cell's weak count so the handle keeps its memory
// mapped even if all strong holders drop before Resolve is called.
func NewCrossThreadHandle(c *cell.Cell) *CrossThreadHandle {
	c.IncWeak()
	return &CrossThreadHandle{origin: heap.CurrentTCB(), cell: c}
}

// Resolve yields a strong holder (incrementing the strong count) only
// when called from the origin goroutine and the cell is not dead.
// From any other goroutine, or once the origin has exited, it reports
// not-resolvable (ok=false) — never a panic, never unsafe memory
// access (spec §7: "reports not-resolvable").
func (h *CrossThreadHandle) Resolve() (c *cell.Cell, ok bool) {
	if !h.origin.IsAlive() {
		return nil, false
	}
	if heap.CurrentTCB() != h.origin {
		return nil, false
	}
	if h.cell.Dead() {
		return nil, false
	}
	h.cell.IncStrong()
	return h.cell, true
}

// Release drops the handle's weak pin. Calling Release twice panics,
// the same discipline Guard.Release enforces.
func (h *CrossThreadHandle) Release() {
	if h.released {
		panic("roots: CrossThreadHandle released twice")
	}
	h.released = true
	if h.cell.DecWeak() && h.cell.Dead() {
		heap.ReleaseDeadSlot(h.cell)
	}
}
