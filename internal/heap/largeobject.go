// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"sort"
	"sync"
	"unsafe"

	"github.com/rudogc/gc/internal/cell"
)

// largeObjectMap is the process-wide address-interval map required by
// spec §4.1: every large allocation is registered so conservative
// scanning and interior-pointer weak upgrades can resolve any pointer
// into the object, not just its head address.
//
// Invariant (spec §3, invariant 4): an entry is removed only once both
// the strong and weak counts of the object it describes are zero;
// thread termination alone must not remove it (the object moves to
// the orphan set instead, see orphan.go).
//
// Lock ordering (spec §5): this lock is acquired AFTER any page-header
// lock and BEFORE the root-set lock. Methods here never call into
// roots; callers that hold both a page lock and need this map must
// take the page lock first.
type largeObjectMap struct {
	mu      sync.Mutex
	entries []*Page // sorted by Base address; KindLargeHead pages only
}

var globalLargeObjects = &largeObjectMap{}

func (m *largeObjectMap) insert(p *Page) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := sort.Search(len(m.entries), func(i int) bool {
		return uintptr(m.entries[i].Base) >= uintptr(p.Base)
	})
	m.entries = append(m.entries, nil)
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = p
}

// lookup finds the KindLargeHead page, if any, whose span contains
// addr. Used by conservative scanning and by tail-page write barriers
// resolving to their head page.
func (m *largeObjectMap) lookup(addr uintptr) *Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := sort.Search(len(m.entries), func(i int) bool {
		return uintptr(m.entries[i].Base) > addr
	}) - 1
	if i < 0 || i >= len(m.entries) {
		return nil
	}
	p := m.entries[i]
	if addr >= uintptr(p.Base) && addr < uintptr(p.Base)+p.LargeSize+headerSize {
		return p
	}
	return nil
}

// tryRemove removes p's entry if both counts on its single cell are
// zero. Called from sweep once a large object's cell has been swept;
// a nonzero weak count keeps the entry (and therefore the mapping)
// alive so a racing weak holder never sees its address resolve to
// unmapped memory mid-upgrade.
func (m *largeObjectMap) tryRemove(p *Page) bool {
	c := p.CellAt(0)
	if c.StrongCount() != 0 || c.WeakCount() != 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e == p {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return true
		}
	}
	return false
}

// LookupCell resolves any address (interior or exact) to its
// containing Cell, consulting the large-object map first and then the
// global small-page registry (smallpages.go) and its bitmaps. Returns
// ok=false if addr lands in no allocated slot, in a dead small-page
// cell, or in a dead large object whose strong and weak counts are
// both zero — the caller (conservative scan) must tolerate false
// negatives never happening and false positives being fine, per spec
// §4.4.
func LookupCell(addr uintptr) (c *cell.Cell, ok bool) {
	if p := globalLargeObjects.lookup(addr); p != nil {
		cl := p.CellAt(0)
		if cl.StrongCount() > 0 || cl.WeakCount() > 0 || !cl.Dead() {
			return cl, true
		}
		return nil, false
	}
	return lookupSmallCell(addr)
}

const pageUsableSpan = PageSize - headerSize

// spanPages returns how many PageSize pages are needed to hold a
// large object of size bytes (including its head-page header).
func spanPages(size uintptr) int {
	need := headerSize + size
	n := int((need + PageSize - 1) / PageSize)
	if n < 1 {
		n = 1
	}
	return n
}

func newLargePages(region *region, size uintptr) (head *Page, tails []*Page) {
	n := spanPages(size)
	base := region.Base()
	head = &Page{
		Kind:      KindLargeHead,
		SizeClass: -1,
		LargeSize: size,
		Base:      base,
		region:    region,
		Bitmap:    []uint64{1}, // one cell, always slot 0
	}
	for i := 1; i < n; i++ {
		tp := &Page{
			Kind:      KindLargeTail,
			SizeClass: -1,
			LargeSize: size,
			Base:      unsafe.Add(base, uintptr(i)*PageSize),
			region:    region,
			LargeHead: head,
		}
		tails = append(tails, tp)
	}
	return head, tails
}
