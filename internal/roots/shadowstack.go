// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package roots implements every root source the mark engine feeds
// from (spec §4.4): the per-goroutine shadow stack, handle scopes
// with a block cache, cross-thread handles, conservative region
// scanning, and the process-wide root set used by async-runtime
// integrations.
package roots

import (
	"sync"

	"github.com/rudogc/gc/internal/cell"
	"github.com/rudogc/gc/internal/heap"
)

// ShadowStack is the exact (no false positives) per-goroutine root
// list described in spec §4.4.1: pushed on Ptr construction, popped
// on Ptr release.
type ShadowStack struct {
	mu    sync.Mutex
	cells []*cell.Cell
}

var shadowStacks sync.Map // goroutine id -> *ShadowStack

// CurrentShadowStack returns (creating if needed) the calling
// goroutine's shadow stack.
func CurrentShadowStack() *ShadowStack {
	gid := heap.GoroutineID()
	if v, ok := shadowStacks.Load(gid); ok {
		return v.(*ShadowStack)
	}
	s := &ShadowStack{}
	actual, _ := shadowStacks.LoadOrStore(gid, s)
	return actual.(*ShadowStack)
}

// Push records c as a live root. Returns an index the caller must
// pass to Pop, so that out-of-order release (a Ptr dropped other than
// in strict LIFO order, e.g. stored in a struct field and dropped
// later) still removes exactly the right slot.
func (s *ShadowStack) Push(c *cell.Cell) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cells = append(s.cells, c)
	return len(s.cells) - 1
}

// Pop clears the root at idx. Every other entry keeps its index, so a
// root released out of LIFO order never disturbs another holder's
// index; cleared entries at the top of the stack are trimmed off.
func (s *ShadowStack) Pop(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.cells) {
		return
	}
	s.cells[idx] = nil
	n := len(s.cells)
	for n > 0 && s.cells[n-1] == nil {
		n--
	}
	s.cells = s.cells[:n]
}

// Scan invokes visit for every cell currently rooted by this shadow
// stack. Called by the Snapshot root scan (spec §4.6/§4.7).
func (s *ShadowStack) Scan(visit func(*cell.Cell)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cells {
		if c != nil {
			visit(c)
		}
	}
}

// AllShadowStacks returns every goroutine's shadow stack currently
// registered, for the Snapshot root scan. The roots are not split
// among mark workers; they all go to the mark engine's shared
// overflow deque.
func AllShadowStacks() []*ShadowStack {
	var out []*ShadowStack
	shadowStacks.Range(func(_, v any) bool {
		out = append(out, v.(*ShadowStack))
		return true
	})
	return out
}
