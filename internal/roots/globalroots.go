// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package roots

import (
	"sync"

	"github.com/rudogc/gc/internal/cell"
)

// globalRoots is the process-wide root set spec §4.4 requires "to
// support async runtimes and cross-thread handles": addresses
// registered explicitly rather than discovered from a goroutine's own
// shadow stack or handle scopes, because an async runtime's task may
// be polled from a different goroutine than the one that created the
// reference.
//
// Lock ordering (spec §5): this is the root-set lock, acquired LAST
// in the hierarchy — after any page-header lock and after the
// large-object map lock.
var globalRoots = struct {
	mu    sync.Mutex
	cells map[*cell.Cell]int // refcount of registrations, so nested guards nest correctly
}{cells: map[*cell.Cell]int{}}

// Register adds c to the process-wide root set. Prefer RegisterGuard
// unless you have a reason to manage the lifetime manually.
func Register(c *cell.Cell) {
	globalRoots.mu.Lock()
	defer globalRoots.mu.Unlock()
	globalRoots.cells[c]++
}

// Unregister removes one registration of c.
func Unregister(c *cell.Cell) {
	globalRoots.mu.Lock()
	defer globalRoots.mu.Unlock()
	if n := globalRoots.cells[c]; n <= 1 {
		delete(globalRoots.cells, c)
	} else {
		globalRoots.cells[c] = n - 1
	}
}

// ScanGlobal visits every cell currently in the process-wide root set.
func ScanGlobal(visit func(*cell.Cell)) {
	globalRoots.mu.Lock()
	defer globalRoots.mu.Unlock()
	for c := range globalRoots.cells {
		visit(c)
	}
}

// Guard is a scoped registration: constructing one registers its
// cell, and Release unregisters it. This is the Go analog of the
// original crate's tokio task guard (SPEC_FULL.md §C.2): wrap a
// managed reference captured by a spawned goroutine in a Guard for
// the goroutine's lifetime.
//
// Hazard (spec §4.4, explicitly called out as user-visible): if the
// goroutine holding a Guard panics or is abandoned without calling
// Release, the registration leaks — the cell is kept alive forever as
// far as the global root set is concerned. Guard deliberately exposes
// no finalizer-based auto-release, because relying on Go's GC to
// eventually run a finalizer would reintroduce exactly the
// unpredictable-latency problem this collector exists to avoid.
type Guard struct {
	c        *cell.Cell
	released bool
}

// RegisterGuard registers c and returns a Guard that will unregister
// it on Release.
func RegisterGuard(c *cell.Cell) *Guard {
	Register(c)
	return &Guard{c: c}
}

// Release unregisters the guard's cell. Calling Release twice panics:
// that would double-decrement the registration refcount and
// potentially unregister a still-needed sibling registration early.
func (g *Guard) Release() {
	if g.released {
		panic("roots: Guard released twice")
	}
	g.released = true
	Unregister(g.c)
}
