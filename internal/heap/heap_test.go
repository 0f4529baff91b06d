// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"testing"

	"github.com/rudogc/gc/internal/cell"
	"github.com/rudogc/gc/internal/typeinfo"
)

func TestClassForSizeMonotonic(t *testing.T) {
	class, ok := ClassForSize(16)
	if !ok {
		t.Fatalf("expected a class for the smallest request")
	}
	if ClassSize(class) < 16 {
		t.Fatalf("class %d too small for 16 bytes: %d", class, ClassSize(class))
	}

	if _, ok := ClassForSize(LargeObjectThreshold() + 1); ok {
		t.Fatalf("a request one byte over the threshold must route to the large-object path")
	}
}

func TestAllocateSmallRoundTrip(t *testing.T) {
	h := NewThreadHeap()
	c, err := h.Allocate(typeinfo.Of[int]())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if c.SizeClass < 0 {
		t.Fatalf("small allocation got a large-object size class")
	}
	if c.StrongCount() != 1 {
		t.Fatalf("fresh cell should start with strong count 1, got %d", c.StrongCount())
	}
	p := PageOf(c)
	if p.Kind != KindSmall {
		t.Fatalf("expected a KindSmall page for a small allocation")
	}
	if p.SlotIndex(c) < 0 {
		t.Fatalf("slot index should be non-negative")
	}
}

func TestAllocateLargeCellAt(t *testing.T) {
	h := NewThreadHeap()
	info := &typeinfo.Info{Size: uintptr(2 * PageSize), Align: 8}
	c, err := h.Allocate(info)
	if err != nil {
		t.Fatalf("allocate large: %v", err)
	}
	if c.SizeClass != -1 {
		t.Fatalf("large object should carry SizeClass -1, got %d", c.SizeClass)
	}
	p := PageOf(c)
	// CellAt(0) on a large page used to panic (negative size-class
	// index into sizeClasses); this exercises that path directly.
	if p.CellAt(0) != c {
		t.Fatalf("CellAt(0) on a large head page must return the object's own cell")
	}
}

func TestReclaimClearsGenerationAndOldTag(t *testing.T) {
	h := NewThreadHeap()
	c, err := h.Allocate(typeinfo.Of[int]())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	c.SetGeneration(cell.Old)
	c.SetOldTagged(true)

	p := PageOf(c)
	slot := p.SlotIndex(c)
	p.Reclaim(slot)

	reused, err := h.Allocate(typeinfo.Of[int]())
	if err != nil {
		t.Fatalf("allocate after reclaim: %v", err)
	}
	if reused.Generation() != cell.Young {
		t.Fatalf("reused slot must start Young, not inherit the prior occupant's Old tag")
	}
	if reused.OldTagged() {
		t.Fatalf("reused slot must not inherit the prior occupant's individual old-tag bit")
	}
}

func TestForEachLiveSlotSkipsReclaimed(t *testing.T) {
	h := NewThreadHeap()
	c, err := h.Allocate(typeinfo.Of[int]())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	p := PageOf(c)
	slot := p.SlotIndex(c)

	seen := false
	p.ForEachLiveSlot(func(s int, _ *cell.Cell) {
		if s == slot {
			seen = true
		}
	})
	if !seen {
		t.Fatalf("live slot missing from ForEachLiveSlot before reclaim")
	}

	p.Reclaim(slot)
	seen = false
	p.ForEachLiveSlot(func(s int, _ *cell.Cell) {
		if s == slot {
			seen = true
		}
	})
	if seen {
		t.Fatalf("reclaimed slot still reported as live")
	}
}

func TestLookupCellLargeObject(t *testing.T) {
	h := NewThreadHeap()
	info := &typeinfo.Info{Size: uintptr(2 * PageSize), Align: 8}
	c, err := h.Allocate(info)
	if err != nil {
		t.Fatalf("allocate large: %v", err)
	}
	p := PageOf(c)
	found, ok := LookupCell(uintptr(p.Base))
	if !ok || found != c {
		t.Fatalf("LookupCell did not resolve a large object's own head address")
	}
}
