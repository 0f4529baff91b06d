// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import "github.com/rudogc/gc/internal/cell"

// ReleaseDeadSlot returns a dead cell's storage once its weak count
// has also reached zero (spec §4.2: a weak holder "releases the
// underlying slot" at zero with the dead flag set). For a small-page
// cell this returns the slot to the page's free list; for a large
// object it attempts to drop the process-wide map entry and, once
// that succeeds, unmaps the backing region.
//
// Called from both the sweeper (when a cell dies with no outstanding
// weak holders) and from Weak.Release / CrossThreadHandle.Release
// (when the last weak holder drops after the cell already died).
func ReleaseDeadSlot(c *cell.Cell) {
	p := pageOf(c)
	switch p.Kind {
	case KindSmall:
		slot := p.SlotIndex(c)
		p.Reclaim(slot)
		if p.AllDead() {
			// Nothing to do here: a page fully reclaimed
			// while still owned by a live thread heap stays
			// registered with that heap and its free slots
			// are reused in place; only the orphan sweep
			// (internal/sweep) calls Release on a page.
		}
	case KindLargeHead:
		if TryRemoveLargeEntry(p) {
			p.RegionRelease()
		}
	}
}
