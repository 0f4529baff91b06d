// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"sync"
	"unsafe"

	"github.com/rudogc/gc/internal/cell"
)

// Kind distinguishes a small-object page from the head page of a
// large object.
type Kind uint8

const (
	KindSmall Kind = iota
	KindLargeHead
	KindLargeTail
)

// Page is the fixed-size, size-class-homogeneous header described in
// spec §3 for one PageSize-byte region. It is an ordinary Go value
// that points at the region through Base; cells for KindSmall pages
// are laid out in the region starting headerSize bytes past Base, at
// SizeClass-sized strides.
//
// Lock is the page-header lock from the lock hierarchy in spec §5:
// "page-header locks are always acquired before the large-object map
// lock, which is acquired before the root-set lock." Any code path
// that needs both a page lock and the large-object map must take them
// in that order.
type Page struct {
	Lock sync.Mutex

	Kind       Kind
	SizeClass  int // index into sizeClasses; -1 for large pages
	Generation cell.Generation

	// Dirty is set by the generational write barrier when a
	// pointer into this (old) page is written to point at a
	// young cell, and cleared when the page is re-scanned during
	// a minor collection. Accessed with the atomic helpers below
	// so the barrier's fast path (spec §5: "no implicit
	// suspension inside ... clone") never has to take Lock.
	dirty uint32

	// Bitmap has one bit per cell slot, set when the slot holds a
	// live (allocated, not yet swept) cell. Index i corresponds
	// to the cell at offset headerSize + i*ClassSize(SizeClass).
	Bitmap []uint64

	// FreeList is the slot index at the head of the lazy free list
	// threaded through dead slots; each free slot stores the next
	// index and -1 ends the list, while FreeListLen == 0 means the
	// list is empty. Slot indices, not pointers, so
	// the free list survives the page being memset/reused without
	// needing pointer fixups.
	FreeList    int32
	FreeListLen int32

	// OwnerThread is the thread id of the per-thread heap that
	// owns this page, or 0 once orphaned.
	OwnerThread uint64

	// Base is the start of the region this header describes; cells
	// are computed relative to it. Region is the raw backing
	// memory, kept alive by this reference even if it came from
	// an OS mapping (region_unix.go) rather than the Go heap.
	Base   unsafe.Pointer
	region *region

	// LargeSize is the total payload size for a large object
	// (Kind != KindSmall); zero for small pages.
	LargeSize uintptr
	// LargeHead points at the KindLargeHead page for a
	// KindLargeTail page, so a tail-page write barrier can find
	// the cell header (spec §4.5, "Multi-page objects").
	LargeHead *Page

	// next threads this page onto a per-thread free-reserve singly
	// linked list; guarded by the owning ThreadHeap's mu.
	next *Page
}

// CellAt returns the Cell header at slot index i of a small page, or
// the single head cell of a large object (i must be 0; a large object
// has exactly one Cell, at its head page's Base+headerSize).
func (p *Page) CellAt(i int) *cell.Cell {
	if p.Kind != KindSmall {
		return (*cell.Cell)(unsafe.Add(p.Base, headerSize))
	}
	off := uintptr(headerSize) + uintptr(i)*uintptr(sizeClasses[p.SizeClass])
	return (*cell.Cell)(unsafe.Add(p.Base, off))
}

// SlotIndex returns the slot index of c within p, assuming c was
// returned by CellAt on this page.
func (p *Page) SlotIndex(c *cell.Cell) int {
	off := uintptr(unsafe.Pointer(c)) - uintptr(p.Base) - headerSize
	return int(off / uintptr(sizeClasses[p.SizeClass]))
}

func (p *Page) bitSet(i int) bool {
	return p.Bitmap[i/64]&(1<<uint(i%64)) != 0
}

func (p *Page) bitSetTo(i int, v bool) {
	word := i / 64
	mask := uint64(1) << uint(i%64)
	if v {
		p.Bitmap[word] |= mask
	} else {
		p.Bitmap[word] &^= mask
	}
}

// Dirty / SetDirty are lock-free: the generational barrier must never
// block the mutator (spec §5).
func (p *Page) Dirty() bool { return loadU32(&p.dirty) != 0 }
func (p *Page) SetDirty(v bool) {
	if v {
		storeU32(&p.dirty, 1)
	} else {
		storeU32(&p.dirty, 0)
	}
}
