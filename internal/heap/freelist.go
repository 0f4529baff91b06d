// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"unsafe"

	"github.com/rudogc/gc/internal/cell"
)

// unsafe_SizeofCellHeader returns the size of cell.Cell, used to
// compute how much of a size class's stride is header vs. payload.
// Kept as a function (rather than a package-level const) so it stays
// in sync with cell.Cell's layout without a second source of truth.
func unsafe_SizeofCellHeader() uintptr {
	var c cell.Cell
	return unsafe.Sizeof(c)
}

// unsafePagePointer / pageOf convert between *Page and the
// unsafe.Pointer cell.Cell.Page stores. cell can't import heap (heap
// already imports cell), so the Cell struct stores its owning page
// type-erased; these two functions are the only place that erasure is
// bridged back.
func unsafePagePointer(p *Page) unsafe.Pointer { return unsafe.Pointer(p) }

func pageOf(c *cell.Cell) *Page { return (*Page)(c.Page) }

// initFreeList threads slots 0..n-1 of a fresh page into a free list,
// writing "next free index" into each dead slot's payload area (the
// slot has no live value yet, so this is safe) and marks the page
// fully free.
func initFreeList(p *Page, n int) {
	for i := 0; i < n; i++ {
		c := p.CellAt(i)
		next := int32(-1)
		if i+1 < n {
			next = int32(i + 1)
		}
		writeFreeNext(c, next)
	}
	p.FreeList = 0
	p.FreeListLen = int32(n)
}

// readFreeNext / writeFreeNext store the free-list link in the first
// 4 bytes of a dead cell's payload, analogous to how a classic
// malloc free list overlays its links on unused storage.
func readFreeNext(c *cell.Cell) int32 {
	return *(*int32)(c.Payload())
}

func writeFreeNext(c *cell.Cell, next int32) {
	*(*int32)(c.Payload()) = next
}
