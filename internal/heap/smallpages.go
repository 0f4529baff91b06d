// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"sort"
	"sync"

	"github.com/rudogc/gc/internal/cell"
)

// smallPageRegistry maps any address back to the KindSmall page that
// contains it, for conservative scanning. A global sorted table
// (rather than masking addr to a PageSize boundary) avoids assuming
// regions are mapped at PageSize-aligned addresses, which the
// make([]byte)-backed fallback (region_generic.go) cannot guarantee.
type smallPageRegistry struct {
	mu    sync.Mutex
	bases []uintptr
	pages []*Page
}

var globalSmallPages = &smallPageRegistry{}

func (r *smallPageRegistry) insert(p *Page) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr := uintptr(p.Base)
	i := sort.Search(len(r.bases), func(i int) bool { return r.bases[i] >= addr })
	r.bases = append(r.bases, 0)
	copy(r.bases[i+1:], r.bases[i:])
	r.bases[i] = addr
	r.pages = append(r.pages, nil)
	copy(r.pages[i+1:], r.pages[i:])
	r.pages[i] = p
}

func (r *smallPageRegistry) remove(p *Page) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr := uintptr(p.Base)
	i := sort.Search(len(r.bases), func(i int) bool { return r.bases[i] >= addr })
	if i < len(r.bases) && r.bases[i] == addr {
		r.bases = append(r.bases[:i], r.bases[i+1:]...)
		r.pages = append(r.pages[:i], r.pages[i+1:]...)
	}
}

func (r *smallPageRegistry) find(addr uintptr) *Page {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := sort.Search(len(r.bases), func(i int) bool { return r.bases[i] > addr }) - 1
	if i < 0 || i >= len(r.pages) {
		return nil
	}
	p := r.pages[i]
	if addr >= uintptr(p.Base) && addr < uintptr(p.Base)+PageSize {
		return p
	}
	return nil
}

// lookupSmallCell finds the live cell (if any) whose slot contains
// addr, rounding interior pointers down to their slot's start. False
// positives (addr lands in a slot that looks live but whose object
// reference doesn't actually start there) are tolerated by design
// (spec §4.4); false negatives on an address that is truly inside a
// live cell are not.
func lookupSmallCell(addr uintptr) (*cell.Cell, bool) {
	p := globalSmallPages.find(addr)
	if p == nil {
		return nil, false
	}
	p.Lock.Lock()
	defer p.Lock.Unlock()
	stride := uintptr(sizeClasses[p.SizeClass])
	off := addr - uintptr(p.Base) - headerSize
	if addr < uintptr(p.Base)+headerSize {
		return nil, false
	}
	slot := int(off / stride)
	if slot < 0 || slot >= len(p.Bitmap)*64 || slot >= CellsPerPage(p.SizeClass) {
		return nil, false
	}
	if !p.bitSet(slot) {
		return nil, false
	}
	c := p.CellAt(slot)
	if c.Dead() {
		return nil, false
	}
	return c, true
}
