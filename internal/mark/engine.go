// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mark

import (
	"unsafe"

	"github.com/rudogc/gc/internal/barrier"
	"github.com/rudogc/gc/internal/cell"
)

// Engine owns the tri-color worklist: one deque per worker plus an
// overflow deque. Every Enqueue (a root, a cell shaded by the SATB
// barrier, or a child found while scanning) lands on overflow; nothing
// pushes onto a worker's own deque, so workers take all their work
// from overflow through steal.
//
// Engine itself doesn't know about ephemerons, pages, or sweep; it is
// purely "drive cells from white to gray to black by tracing their
// payload," the core of spec §4.6.
type Engine struct {
	deques   []*deque
	overflow *deque

	// filter, when non-nil, gates which cells Shade will actually
	// enqueue. Set to a young-only predicate during a minor
	// collection so scanning never walks into the (already
	// assumed live) old generation — the "minor visitor" of spec
	// §4.3, which "only follows young→young edges."
	filter func(*cell.Cell) bool
}

// SetFilter installs (or clears, with nil) a shading filter. Not
// concurrency-safe with an in-flight Drain; callers set it only while
// the engine is otherwise idle, between collection phases.
func (e *Engine) SetFilter(f func(*cell.Cell) bool) { e.filter = f }

// NewEngine creates an Engine with the given number of worker deques
// and wires itself into internal/barrier so SATB shading lands in the
// worklist (spec §4.5/§4.6 integration point).
func NewEngine(workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	e := &Engine{
		deques:   make([]*deque, workers),
		overflow: newDeque(),
	}
	for i := range e.deques {
		e.deques[i] = newDeque()
	}
	barrier.SetEnqueueFunc(e.Enqueue)
	return e
}

// NumWorkers reports the configured worker count.
func (e *Engine) NumWorkers() int { return len(e.deques) }

// ResetColor sets c back to White. Nothing in the collector calls it
// at cycle start: sweep resets each surviving cell to White itself
// (internal/sweep), and the allocator hands out cells White.
func (e *Engine) ResetColor(c *cell.Cell) {
	c.SetColor(cell.White)
}

// Shade attempts to move c from white to gray and, on success,
// enqueues it for scanning. This is the entry point every root source
// (shadow stack, handle scope, conservative scan) and every
// trace-discovered child pointer funnels through; the SATB barrier
// does its own White->Gray CAS and calls Enqueue directly. Either way
// a cell is only ever placed on a worklist once per cycle (spec §4.6:
// gray = "reached, on a work queue").
func (e *Engine) Shade(c *cell.Cell) {
	if c == nil {
		return
	}
	if e.filter != nil && !e.filter(c) {
		return
	}
	if !c.CompareAndSwapColor(cell.White, cell.Gray) {
		return
	}
	e.Enqueue(c)
}

// Enqueue places an already-gray cell on the overflow deque. Called
// directly by the SATB barrier (the old value is shaded white->gray
// there, using the same CAS, before calling this) and by Shade above,
// whether Shade runs on a root-scanning goroutine or on a worker
// tracing a child. Workers drain it via steal, which checks overflow
// first.
func (e *Engine) Enqueue(c *cell.Cell) {
	e.overflow.PushBottom(c)
}

// EnqueueRoot is Shade under a clearer name for root-scan call sites.
func (e *Engine) EnqueueRoot(c *cell.Cell) { e.Shade(c) }

// DrainResult reports how a Drain call ended.
type DrainResult int

const (
	DrainBudgetExhausted DrainResult = iota
	DrainEmpty
)

// Drain pops and scans up to budget cells from worker id's own deque,
// stealing from peers when it runs dry, until either the budget is
// spent or no work remains anywhere (checked with a single pass over
// peers — the coordinator is responsible for the quiescent-detection
// protocol across repeated Drain calls from all workers, spec §4.6).
//
// scanned counts every cell dequeued and handed to scan, including a
// cell that scan finds already black and does not trace again (which
// shouldn't normally happen since only the dequeuing worker holds it,
// but could if the same cell were ever double-enqueued).
func (e *Engine) Drain(workerID int, budget int) (scanned int, result DrainResult) {
	own := e.deques[workerID]
	for scanned < budget {
		c, ok := own.PopBottom()
		if !ok {
			c, ok = e.steal(workerID)
		}
		if !ok {
			return scanned, DrainEmpty
		}
		e.scan(c)
		scanned++
	}
	return scanned, DrainBudgetExhausted
}

// steal tries the overflow deque first (where barrier-driven enqueues
// land), then every peer worker deque.
func (e *Engine) steal(workerID int) (*cell.Cell, bool) {
	if c, ok := e.overflow.StealTop(); ok {
		return c, true
	}
	for i := range e.deques {
		if i == workerID {
			continue
		}
		if c, ok := e.deques[i].StealTop(); ok {
			return c, true
		}
	}
	return nil, false
}

// scan blackens c by tracing its payload, shading every managed
// reference it owns.
func (e *Engine) scan(c *cell.Cell) {
	if !c.CompareAndSwapColor(cell.Gray, cell.Black) {
		// Already black (shouldn't happen under the
		// single-owner-per-enqueue discipline above, but cheap
		// to guard against a double scan if it ever does).
		return
	}
	if c.Type == nil || c.Type.Trace == nil {
		return
	}
	c.Type.Trace(c.Payload(), func(childAddr unsafe.Pointer) {
		if childAddr == nil {
			return
		}
		e.Shade((*cell.Cell)(childAddr))
	})
}

// TryDrainOne pops and scans a single cell for worker id, trying its
// own deque then stealing, and reports whether it found anything. The
// parallel coordinator uses this during quiescence polling, where
// Drain's budget-driven loop would be the wrong shape.
func (e *Engine) TryDrainOne(workerID int) bool {
	own := e.deques[workerID]
	c, ok := own.PopBottom()
	if !ok {
		c, ok = e.steal(workerID)
	}
	if !ok {
		return false
	}
	e.scan(c)
	return true
}

// Idle reports whether every deque (including overflow) is currently
// empty. Used by the parallel coordinator's quiescent-detection
// termination check.
func (e *Engine) Idle() bool {
	if e.overflow.Len() != 0 {
		return false
	}
	for _, d := range e.deques {
		if d.Len() != 0 {
			return false
		}
	}
	return true
}

// Pending returns the total number of items across all deques, for
// diagnostics.
func (e *Engine) Pending() int {
	n := e.overflow.Len()
	for _, d := range e.deques {
		n += d.Len()
	}
	return n
}
