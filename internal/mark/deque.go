// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mark implements the tri-color marking engine (spec §4.6):
// the per-worker work-stealing worklist and the drain loop that turns
// gray cells black by tracing their payloads.
package mark

import (
	"sync"

	"github.com/rudogc/gc/internal/cell"
)

// deque is a double-ended queue of gray cells. The owning worker
// pushes and pops from the bottom; idle peers steal from the top.
// This is a mutex-guarded deque rather than a fully lock-free
// Chase-Lev deque: contention is low in practice (a worker only
// visits a peer's deque when its own is empty), and a single mutex
// per deque is far easier to audit for correctness than a lock-free
// ring buffer with ABA hazards, which matters more here than shaving
// the last bit of steal latency. See DESIGN.md for the trade-off.
type deque struct {
	mu    sync.Mutex
	items []*cell.Cell
}

func newDeque() *deque { return &deque{} }

// PushBottom adds an item for the owner to consume later (LIFO for
// cache locality: the most recently discovered gray cell is likely to
// reference cells near it in memory).
func (d *deque) PushBottom(c *cell.Cell) {
	d.mu.Lock()
	d.items = append(d.items, c)
	d.mu.Unlock()
}

// PopBottom is the owner's fast path.
func (d *deque) PopBottom() (*cell.Cell, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.items)
	if n == 0 {
		return nil, false
	}
	c := d.items[n-1]
	d.items = d.items[:n-1]
	return c, true
}

// StealTop is how an idle peer worker takes work from the FIFO end,
// which tends to be older (and so more likely to expand into more
// work) than the LIFO end the owner is draining.
func (d *deque) StealTop() (*cell.Cell, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) == 0 {
		return nil, false
	}
	c := d.items[0]
	d.items = d.items[1:]
	return c, true
}

func (d *deque) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}
