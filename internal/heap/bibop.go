// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"sync"
	"sync/atomic"

	"github.com/rudogc/gc/gcerr"
	"github.com/rudogc/gc/internal/cell"
	"github.com/rudogc/gc/internal/typeinfo"
)

var nextThreadID uint64

// ThreadHeap is the per-mutator-thread allocator (spec §4.1: "tied to
// a thread control block"). It owns a current page and a small free
// reserve per size class; class bins don't share pages, so two
// threads allocating the same size class never contend on the same
// page's freelist.
type ThreadHeap struct {
	ID uint64

	mu      sync.Mutex
	current []*Page // current[class] is the page new allocations land on
	reserve []*Page // reserve[class] is a singly-linked free-page list, via Page.next

	// allSmall and allLarge track every page (small + large head) this heap
	// currently owns, so thread exit can hand them all to the
	// orphan set in one pass.
	allSmall []*Page
	allLarge []*Page

	exited int32
}

// NewThreadHeap registers a fresh per-thread heap. Callers call this
// once per mutator thread (typically lazily, on first allocation).
func NewThreadHeap() *ThreadHeap {
	n := NumSizeClasses()
	return &ThreadHeap{
		ID:      atomic.AddUint64(&nextThreadID, 1),
		current: make([]*Page, n),
		reserve: make([]*Page, n),
	}
}

// globalPagePool holds fully-free pages reclaimed by sweep, available
// for reuse by any thread regardless of their previous size class
// (they're re-carved on handout).
var globalPagePool struct {
	mu    sync.Mutex
	pages []*region
}

func acquireFreshRegion() (*region, error) {
	globalPagePool.mu.Lock()
	if n := len(globalPagePool.pages); n > 0 {
		r := globalPagePool.pages[n-1]
		globalPagePool.pages = globalPagePool.pages[:n-1]
		globalPagePool.mu.Unlock()
		return r, nil
	}
	globalPagePool.mu.Unlock()
	return newRegion(PageSize)
}

// ReleaseRegionToPool returns an all-dead small page's backing region
// to the global pool for reuse by any size class (spec §4.8:
// "All-dead pages are returned to the global pool").
func ReleaseRegionToPool(r *region) {
	globalPagePool.mu.Lock()
	defer globalPagePool.mu.Unlock()
	globalPagePool.pages = append(globalPagePool.pages, r)
}

// Allocate returns a live Cell for a freshly constructed value of the
// type described by info, routing to a small-object page of the
// matching size class or to the dedicated large-object path.
func (h *ThreadHeap) Allocate(info *typeinfo.Info) (*cell.Cell, error) {
	need := int(unsafe_SizeofCellHeader()) + int(info.Size)
	if class, ok := ClassForSize(need); ok {
		return h.allocateSmall(class, info)
	}
	return h.allocateLarge(info)
}

func (h *ThreadHeap) allocateSmall(class int, info *typeinfo.Info) (*cell.Cell, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	page := h.current[class]
	if page == nil || page.FreeListLen == 0 {
		np, err := h.acquirePage(class)
		if err != nil {
			return nil, err
		}
		page = np
		h.current[class] = page
	}

	page.Lock.Lock()
	slot := page.FreeList
	c := page.CellAt(int(slot))
	// The free list threads through dead slots by storing the
	// next free index in the first 4 bytes of the payload area
	// (the slot isn't live, so this is safe); see freelist.go.
	page.FreeList = readFreeNext(c)
	page.FreeListLen--
	page.bitSetTo(int(slot), true)
	page.Lock.Unlock()

	c.ResetForReuse()
	c.SizeClass = int32(class)
	c.Page = unsafePagePointer(page)
	c.Type = info
	c.Strong = 1
	return c, nil
}

// acquirePage must be called with h.mu held. It takes a page from the
// per-thread reserve, or carves a fresh one from a region.
func (h *ThreadHeap) acquirePage(class int) (*Page, error) {
	if p := h.reserve[class]; p != nil {
		h.reserve[class] = p.next
		p.next = nil
		return p, nil
	}
	r, err := acquireFreshRegion()
	if err != nil {
		return nil, gcerr.New(gcerr.Exhaustion, "heap.acquirePage", "no pages available", err)
	}
	n := CellsPerPage(class)
	p := &Page{
		Kind:      KindSmall,
		SizeClass: class,
		Base:      r.Base(),
		region:    r,
		Bitmap:    make([]uint64, (n+63)/64),
	}
	initFreeList(p, n)
	p.OwnerThread = h.ID
	h.allSmall = append(h.allSmall, p)
	globalSmallPages.insert(p)
	return p, nil
}

func (h *ThreadHeap) allocateLarge(info *typeinfo.Info) (*cell.Cell, error) {
	size := uintptr(unsafe_SizeofCellHeader()) + info.Size
	n := spanPages(size)
	// A large object reserves n contiguous PageSize regions as one
	// mapping, so the tail pages sit immediately after the head
	// page and LargeHead resolution (spec §4.5) never has to
	// stitch together separate allocations.
	r, err := newRegion(uintptr(n) * PageSize)
	if err != nil {
		return nil, gcerr.New(gcerr.Exhaustion, "heap.allocateLarge", "mapping failed", err)
	}
	head, tails := newLargePages(r, size)
	head.OwnerThread = h.ID

	h.mu.Lock()
	h.allLarge = append(h.allLarge, head)
	h.mu.Unlock()

	globalLargeObjects.insert(head)

	c := head.CellAt(0)
	c.ResetForReuse()
	c.SizeClass = -1
	c.Page = unsafePagePointer(head)
	c.Type = info
	c.Strong = 1
	_ = tails // tails are addressable via LargeHead but need no separate registration
	return c, nil
}

// Exit drains this heap into the global orphan set (spec §4.1: "On
// thread exit the heap is drained into an orphan set"). After Exit,
// the ThreadHeap must not be used again.
func (h *ThreadHeap) Exit() {
	if !atomic.CompareAndSwapInt32(&h.exited, 0, 1) {
		return
	}
	h.mu.Lock()
	small := h.allSmall
	large := h.allLarge
	h.allSmall, h.allLarge = nil, nil
	h.mu.Unlock()
	globalOrphans.adopt(small, large)
}
