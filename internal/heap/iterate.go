// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import "github.com/rudogc/gc/internal/cell"

// AllPages returns a snapshot of every page currently registered,
// small and large-head, across every thread heap and the orphan set.
// Used by the collector at Snapshot time to reset mark color, and by
// Sweep to walk the whole heap.
func AllPages() (small, large []*Page) {
	globalSmallPages.mu.Lock()
	small = append([]*Page(nil), globalSmallPages.pages...)
	globalSmallPages.mu.Unlock()

	globalLargeObjects.mu.Lock()
	large = append([]*Page(nil), globalLargeObjects.entries...)
	globalLargeObjects.mu.Unlock()
	return
}

// AllCells invokes fn for every live cell in the heap (small-page
// slots that are allocated, plus every large object).
func AllCells(fn func(*cell.Cell)) {
	small, large := AllPages()
	for _, p := range small {
		if p.Kind != KindSmall {
			continue
		}
		p.ForEachLiveSlot(func(_ int, c *cell.Cell) {
			if !c.Dead() {
				fn(c)
			}
		})
	}
	for _, p := range large {
		c := p.CellAt(0)
		if !c.Dead() {
			fn(c)
		}
	}
}
