// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package barrier

import (
	"testing"

	"github.com/rudogc/gc/internal/cell"
	"github.com/rudogc/gc/internal/heap"
	"github.com/rudogc/gc/internal/typeinfo"
)

func TestShadeNoopWhenDisabled(t *testing.T) {
	SetSATBEnabled(false)
	var enqueued []*cell.Cell
	SetEnqueueFunc(func(c *cell.Cell) { enqueued = append(enqueued, c) })
	defer SetEnqueueFunc(nil)

	var c cell.Cell
	Shade(1, &c)
	if c.Color() != cell.White {
		t.Fatalf("Shade must not touch color while SATB is disabled")
	}
	if len(enqueued) != 0 {
		t.Fatalf("Shade must not enqueue while SATB is disabled")
	}
}

func TestShadeFlushesAtCapacity(t *testing.T) {
	SetSATBEnabled(true)
	defer SetSATBEnabled(false)
	SetBufferCapacity(2)
	defer SetBufferCapacity(DefaultRememberedBufferLen)

	var enqueued []*cell.Cell
	SetEnqueueFunc(func(c *cell.Cell) { enqueued = append(enqueued, c) })
	defer SetEnqueueFunc(nil)

	var a, b, c cell.Cell
	Shade(99, &a)
	if len(enqueued) != 0 {
		t.Fatalf("buffer of 1 must not flush yet, capacity is 2")
	}
	Shade(99, &b)
	if len(enqueued) != 2 {
		t.Fatalf("buffer reaching capacity must flush, got %d enqueued", len(enqueued))
	}
	if a.Color() != cell.Gray || b.Color() != cell.Gray {
		t.Fatalf("shaded cells must turn Gray")
	}

	Shade(99, &c)
	if len(enqueued) != 2 {
		t.Fatalf("a fresh buffer entry shouldn't flush until capacity again")
	}
	FlushAll()
	if len(enqueued) != 3 {
		t.Fatalf("FlushAll must drain the remaining buffered entry, got %d", len(enqueued))
	}
}

func TestShadeOnlyShadesWhiteOnce(t *testing.T) {
	SetSATBEnabled(true)
	defer SetSATBEnabled(false)
	SetEnqueueFunc(func(*cell.Cell) {})
	defer SetEnqueueFunc(nil)

	var c cell.Cell
	c.SetColor(cell.Black)
	Shade(1, &c)
	if c.Color() != cell.Black {
		t.Fatalf("Shade must leave an already-black cell alone")
	}
}

func TestGenerationalBarrierOldToYoung(t *testing.T) {
	h := heap.NewThreadHeap()
	old, err := h.Allocate(typeinfo.Of[int]())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	young, err := h.Allocate(typeinfo.Of[int]())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	old.SetOldTagged(true)
	p := heap.PageOf(old)

	WritePointer(old, p, young)
	if !p.Dirty() {
		t.Fatalf("writing a young pointer into an old-tagged cell must mark the page dirty")
	}
	found := false
	for _, rp := range RememberedPages() {
		if rp == p {
			found = true
		}
	}
	if !found {
		t.Fatalf("dirtied page must enter the remembered set")
	}
	ClearRemembered(p)
	if p.Dirty() {
		t.Fatalf("ClearRemembered must clear the dirty bit")
	}
}

func TestGenerationalBarrierYoungToYoungIsNoop(t *testing.T) {
	h := heap.NewThreadHeap()
	a, err := h.Allocate(typeinfo.Of[int]())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	b, err := h.Allocate(typeinfo.Of[int]())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	p := heap.PageOf(a)
	WritePointer(a, p, b)
	if p.Dirty() {
		t.Fatalf("a young container writing a young pointer must not dirty the page")
	}
}

func TestHeadPageForSmallCellIsItself(t *testing.T) {
	h := heap.NewThreadHeap()
	c, err := h.Allocate(typeinfo.Of[int]())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if HeadPageFor(c) != heap.PageOf(c) {
		t.Fatalf("HeadPageFor on a small cell must return its own page")
	}
}
