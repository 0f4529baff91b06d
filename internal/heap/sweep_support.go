// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import "github.com/rudogc/gc/internal/cell"

// ForEachLiveSlot invokes fn for every currently-allocated slot on a
// KindSmall page. The sweeper uses this to find white cells; fn must
// not mutate p's bitmap (use Reclaim for that, after fn returns).
func (p *Page) ForEachLiveSlot(fn func(slot int, c *cell.Cell)) {
	p.Lock.Lock()
	defer p.Lock.Unlock()
	n := CellsPerPage(p.SizeClass)
	for i := 0; i < n; i++ {
		if p.bitSet(i) {
			fn(i, p.CellAt(i))
		}
	}
}

// Reclaim returns slot to the page's free list and clears its live
// bit. Must be called only after the cell's destructor (if any) has
// already run (spec §4.8: destructors run, then slots return to the
// free list).
func (p *Page) Reclaim(slot int) {
	p.Lock.Lock()
	defer p.Lock.Unlock()
	c := p.CellAt(slot)
	c.SetOldTagged(false)       // spec §4.5: clear on deallocation
	c.SetGeneration(cell.Young) // a reused slot must not inherit Old from its previous occupant
	writeFreeNext(c, p.FreeList)
	p.FreeList = int32(slot)
	p.FreeListLen++
	p.bitSetTo(slot, false)
}

// AllDead reports whether every slot on p is free.
func (p *Page) AllDead() bool {
	p.Lock.Lock()
	defer p.Lock.Unlock()
	n := CellsPerPage(p.SizeClass)
	return int(p.FreeListLen) == n
}

// Release hands p's backing region back to the global pool (small
// page) or to the OS (large object), and removes it from whichever
// registry tracked it.
func (p *Page) Release() {
	switch p.Kind {
	case KindSmall:
		globalSmallPages.remove(p)
		ReleaseRegionToPool(p.region)
	case KindLargeHead:
		globalLargeObjects.tryRemove(p)
		p.region.Release()
	}
}

// TryRemoveLargeEntry attempts to drop p's large-object map entry; it only
// succeeds once both counts are zero (invariant 4).
func TryRemoveLargeEntry(p *Page) bool {
	return globalLargeObjects.tryRemove(p)
}

// RegionRelease is exposed for sweep to fully unmap a large object
// once its map entry is gone.
func (p *Page) RegionRelease() { p.region.Release() }

// PageOf exposes pageOf for packages outside heap (mark, barrier,
// sweep) that only hold a *cell.Cell.
func PageOf(c *cell.Cell) *Page { return pageOf(c) }
