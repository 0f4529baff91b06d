// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package barrier

import (
	"sync"

	"github.com/rudogc/gc/internal/cell"
	"github.com/rudogc/gc/internal/heap"
)

// rememberedSet tracks old-generation pages with a pointer to a
// young-generation cell (spec §3 invariant 3, §4.5). A minor
// collection scans only these pages' pointer fields as roots instead
// of the whole heap.
var rememberedSet = struct {
	mu    sync.Mutex
	pages map[*heap.Page]struct{}
}{pages: map[*heap.Page]struct{}{}}

func remember(p *heap.Page) {
	rememberedSet.mu.Lock()
	defer rememberedSet.mu.Unlock()
	rememberedSet.pages[p] = struct{}{}
}

// RememberedPages returns a snapshot of pages on the remembered set,
// for the minor-collection root scan.
func RememberedPages() []*heap.Page {
	rememberedSet.mu.Lock()
	defer rememberedSet.mu.Unlock()
	out := make([]*heap.Page, 0, len(rememberedSet.pages))
	for p := range rememberedSet.pages {
		out = append(out, p)
	}
	return out
}

// ClearRemembered drops p from the remembered set and its dirty bit,
// called once a minor collection has rescanned p's pointer fields
// (spec §4.5: "During a minor collection... the dirty bit [is
// cleared]" — implicit in the phase description; made explicit here).
func ClearRemembered(p *heap.Page) {
	rememberedSet.mu.Lock()
	delete(rememberedSet.pages, p)
	rememberedSet.mu.Unlock()
	p.SetDirty(false)
}

// RememberedCount is exposed for the incremental state machine's
// max_dirty_pages fallback check (spec §4.7).
func RememberedCount() int {
	rememberedSet.mu.Lock()
	defer rememberedSet.mu.Unlock()
	return len(rememberedSet.pages)
}

// WritePointer implements the generational barrier (spec §4.5): call
// this on every store of newValue into a pointer field of a cell
// owned by containerPage. If the container is (page-level or
// individually) old-generation and newValue is young, the container's
// page is marked dirty and entered into the remembered set.
//
// Multi-page objects: containerPage must already be resolved to the
// object's head page by the caller for tail-page writes (spec §4.5,
// "must locate the head via the large-object map rather than masking
// the address to page boundary") — see HeadPageFor.
func WritePointer(containerCell *cell.Cell, containerPage *heap.Page, newValue *cell.Cell) {
	if newValue == nil {
		return
	}
	containerOld := containerPage.Generation == cell.Old || containerCell.OldTagged()
	if !containerOld {
		return
	}
	if newValue.Generation() != cell.Young {
		return
	}
	if !containerPage.Dirty() {
		containerPage.SetDirty(true)
		remember(containerPage)
	}
}

// HeadPageFor resolves any cell to the page that should be used as
// the generational barrier's "containerPage" argument: itself for a
// small or large-head cell, or its LargeHead for a large-tail write.
// Tail pages don't themselves carry a header (spec §4.5), so a write
// into a tail-page field must be attributed to the head.
func HeadPageFor(c *cell.Cell) *heap.Page {
	p := heap.PageOf(c)
	if p.Kind == heap.KindLargeTail {
		return p.LargeHead
	}
	return p
}
