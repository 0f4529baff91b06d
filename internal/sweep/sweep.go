// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sweep reclaims cells the mark phase left white (spec §4.8):
// it runs each dead cell's destructor, then returns its slot to the
// owning page's free list, and participates in orphan-page cleanup
// for pages whose thread has already exited.
package sweep

import (
	"github.com/rudogc/gc/internal/barrier"
	"github.com/rudogc/gc/internal/cell"
	"github.com/rudogc/gc/internal/heap"
)

// Stats summarizes one sweep pass, for telemetry (SPEC_FULL.md §A.1
// logging).
type Stats struct {
	Swept     int // destructors run, slots reclaimed
	Survived  int // cells that were black and are now reset to white
	Promoted  int // survivors individually tagged old (minor sweep only)
	Orphaned  int // orphan pages fully reclaimed and released
}

// Sweep walks every live cell reachable from the heap's page and
// large-object registries (plus the orphan set) and, for each:
//
//   - white with a nonzero strong count: left untouched, since it may
//     have been allocated or rooted after Snapshot scanned the roots
//     (see sweepOneCell).
//   - any other white cell: dead. Runs its destructor (if any), marks it dead, and
//     reclaims its slot unless a weak holder is still outstanding, in
//     which case the slot stays allocated-but-dead until that holder
//     releases it (spec §4.2).
//   - gray: cannot happen at Sweep time; a cycle that ends Marking
//     with gray cells left over is a coordinator bug, not a sweep
//     concern, so it is treated the same as black (kept alive) rather
//     than panicking mid-sweep.
//   - black: survived. Reset to white for the next cycle. During a
//     minor sweep, survivors are promoted to the old generation (spec
//     §4.3: "objects are promoted to old on surviving one minor
//     collection") and their page's dirty/remembered-set entry is
//     cleared now that the minor scan has accounted for it.
//
// minor restricts the walk to young-generation cells only, matching
// the minor visitor's "only follows young→young edges" scope; a major
// sweep examines everything.
func Sweep(minor bool) Stats {
	var st Stats

	small, large := heap.AllPages()
	for _, p := range small {
		sweepSmallPage(p, minor, &st)
	}
	for _, p := range large {
		sweepLargeHead(p, minor, &st)
	}

	if minor {
		for _, p := range barrier.RememberedPages() {
			barrier.ClearRemembered(p)
		}
	}

	sweepOrphans(minor, &st)
	return st
}

func sweepSmallPage(p *heap.Page, minor bool, st *Stats) {
	var toReclaim []int
	p.ForEachLiveSlot(func(slot int, c *cell.Cell) {
		if minor && c.Generation() != cell.Young {
			// Old cells are assumed live for the duration of a
			// minor cycle (spec §4.3); they were never traced
			// this cycle, so a leftover white color here says
			// nothing about reachability and must not be
			// interpreted as dead.
			return
		}
		reclaim := sweepOneCell(c, minor, st)
		if reclaim {
			toReclaim = append(toReclaim, slot)
		}
	})
	for _, slot := range toReclaim {
		p.Reclaim(slot)
	}
}

func sweepLargeHead(p *heap.Page, minor bool, st *Stats) {
	c := p.CellAt(0)
	if c.Dead() {
		return
	}
	if minor && c.Generation() != cell.Young {
		return
	}
	if sweepOneCell(c, minor, st) {
		heap.ReleaseDeadSlot(c)
	}
}

// sweepOneCell runs the white/black disposition for a single cell and
// reports whether its slot should now be reclaimed (true only for a
// white cell with no outstanding weak holder).
func sweepOneCell(c *cell.Cell, minor bool, st *Stats) (reclaim bool) {
	switch c.Color() {
	case cell.White:
		if c.StrongCount() > 0 {
			// White here doesn't mean unreachable: it can also mean
			// "allocated (or rooted) after this cycle's Snapshot
			// already scanned roots," since root scanning runs
			// exactly once per cycle and SATB only shades an
			// overwritten *old* value, never a brand-new cell. A
			// nonzero strong count is always a potential root (spec
			// data model); reclaiming it here would free a still
			// strongly-held object, violating invariant 1 (refcount
			// zero at reclamation). Leave it untouched for the next
			// cycle's trace to settle.
			return false
		}
		if c.Type != nil && c.Type.Finalize != nil {
			c.Type.Finalize(c.Payload())
		}
		c.MarkDead()
		st.Swept++
		return c.WeakCount() == 0
	default: // Gray or Black: survived this cycle
		c.SetColor(cell.White)
		st.Survived++
		if minor && c.Generation() == cell.Young {
			c.SetGeneration(cell.Old)
			st.Promoted++
		}
		return false
	}
}

// sweepOrphans walks pages whose owning goroutine has already exited
// (heap.DetachCurrent moved them here). A small orphan page whose
// every slot ends up dead is released back to the region pool; a
// large orphan object is released once its map entry drops, the same
// as an owned one, just reached via the orphan snapshot instead of a
// live ThreadHeap.
func sweepOrphans(minor bool, st *Stats) {
	small, large := heap.OrphanPages()
	for _, p := range small {
		sweepSmallPage(p, minor, st)
		if p.AllDead() {
			heap.RemoveOrphanSmall(p)
			p.Release()
			st.Orphaned++
		}
	}
	for _, p := range large {
		sweepLargeHead(p, minor, st)
		if p.CellAt(0).Dead() && p.CellAt(0).WeakCount() == 0 {
			heap.RemoveOrphanLarge(p)
			st.Orphaned++
		}
	}
}
