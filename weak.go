// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"github.com/rudogc/gc/internal/cell"
	"github.com/rudogc/gc/internal/heap"
	"github.com/rudogc/gc/internal/roots"
)

// Weak is a non-owning reference: it keeps a cell's slot mapped (via
// the weak count) without keeping the value itself alive, and must be
// upgraded to a Ptr to access the payload (spec §3, §6).
type Weak[T any] struct {
	c *cell.Cell
}

// IsAlive reports whether the referenced cell has not yet been swept.
// This is inherently racy with a concurrent collection the same way
// it would be in any tracing collector: a true result is only a
// snapshot, and Upgrade is the only operation that atomically commits
// to a cell staying alive. Callers that need a definite answer call
// Upgrade and check its bool, not IsAlive.
func (w Weak[T]) IsAlive() bool { return !w.c.Dead() }

// Upgrade attempts to produce a strong Ptr[T] to the referenced cell.
// It is TOCTOU-safe (spec §3, invariant 3 / Testable Properties):
// the strong count is bumped speculatively and then the dead flag is
// checked with acquire ordering (cell.Dead), so either the increment
// happens strictly before the cell is observed dead (and Upgrade
// succeeds, having legitimately kept it alive) or the dead flag was
// already visible (and Upgrade backs out its increment and reports
// false) — there is no window where a caller observes a torn or
// already-freed value.
func (w Weak[T]) Upgrade() (Ptr[T], bool) {
	w.c.IncStrong()
	if w.c.Dead() {
		if w.c.DecStrong() {
			instance().pol.NotifyStrongZero()
		}
		return Ptr[T]{}, false
	}
	slot := roots.CurrentShadowStack().Push(w.c)
	return Ptr[T]{c: w.c, slot: slot, onStack: true}, true
}

// Clone produces a second weak reference to the same cell.
func (w Weak[T]) Clone() Weak[T] {
	w.c.IncWeak()
	return Weak[T]{c: w.c}
}

// Release drops this weak reference. If the cell is already dead and
// this was the last weak holder, its slot is returned for reuse now
// (spec §4.2: "keeps the underlying slot mapped... releases it" at
// weak-count zero).
func (w *Weak[T]) Release() {
	if w.c.DecWeak() && w.c.Dead() {
		heap.ReleaseDeadSlot(w.c)
	}
}
