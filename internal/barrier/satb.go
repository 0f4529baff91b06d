// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package barrier implements the two write barriers of spec §4.5: the
// SATB (snapshot-at-the-beginning) incremental barrier and the
// generational old→young remembered-set barrier.
package barrier

import (
	"sync"
	"sync/atomic"

	"github.com/rudogc/gc/internal/cell"
)

// satbEnabled gates the snapshot barrier; it's only active during the
// Marking phase of the incremental state machine (spec §4.7). Reading
// it must be cheap since every managed pointer-field write checks it.
var satbEnabled int32

func SATBEnabled() bool { return atomic.LoadInt32(&satbEnabled) != 0 }

// SetSATBEnabled is called by the incremental state machine on
// Snapshot entry (true) and FinalMark exit (false).
func SetSATBEnabled(v bool) {
	if v {
		atomic.StoreInt32(&satbEnabled, 1)
	} else {
		atomic.StoreInt32(&satbEnabled, 0)
	}
}

// enqueueFunc is how a shaded (white→gray) cell reaches the mark
// engine's worklist. It's a plain function pointer rather than an
// interface import of internal/mark to avoid a barrier<->mark import
// cycle (mark needs to read SATBEnabled too, via the coordinator
// wiring them together at startup).
var enqueueFunc atomic.Value // func(*cell.Cell)

// SetEnqueueFunc installs the mark engine's enqueue hook. Called once
// during collector initialization.
func SetEnqueueFunc(fn func(*cell.Cell)) {
	enqueueFunc.Store(fn)
}

func enqueue(c *cell.Cell) {
	if v := enqueueFunc.Load(); v != nil {
		v.(func(*cell.Cell))(c)
	}
}

// perThreadBuf buffers shaded cells before flushing to the shared
// worklist, so the barrier's hot path (a single mutation) doesn't pay
// for cross-thread synchronization on every write.
type perThreadBuf struct {
	mu       sync.Mutex
	buf      []*cell.Cell
	capacity int
}

var satbBufs sync.Map // goroutine id -> *perThreadBuf

// DefaultRememberedBufferLen is the default per-thread SATB-enqueue
// buffer capacity before a flush (spec §4.7,
// incremental.remembered_buffer_len).
const DefaultRememberedBufferLen = 256

var bufCapacity int32 = DefaultRememberedBufferLen

// SetBufferCapacity applies incremental.remembered_buffer_len.
func SetBufferCapacity(n int) { atomic.StoreInt32(&bufCapacity, int32(n)) }

func bufFor(gid uint64) *perThreadBuf {
	if v, ok := satbBufs.Load(gid); ok {
		return v.(*perThreadBuf)
	}
	b := &perThreadBuf{capacity: int(atomic.LoadInt32(&bufCapacity))}
	actual, _ := satbBufs.LoadOrStore(gid, b)
	return actual.(*perThreadBuf)
}

// Shade implements the SATB barrier (spec §4.5): before a mutation
// overwrites a managed reference field, the *old* value held there is
// shaded gray (if it was white) and enqueued, preserving "any object
// reachable at the start of marking is marked by end-of-mark
// regardless of concurrent mutation."
//
// Shade is a no-op when the barrier isn't active, so non-incremental
// (pure STW) configurations pay only the cost of the atomic load in
// SATBEnabled.
func Shade(gid uint64, old *cell.Cell) {
	if old == nil || !SATBEnabled() {
		return
	}
	if !old.CompareAndSwapColor(cell.White, cell.Gray) {
		return // already gray or black; nothing to do
	}
	b := bufFor(gid)
	b.mu.Lock()
	b.buf = append(b.buf, old)
	full := len(b.buf) >= b.capacity
	var flushed []*cell.Cell
	if full {
		flushed = b.buf
		b.buf = nil
	}
	b.mu.Unlock()
	for _, c := range flushed {
		enqueue(c)
	}
}

// FlushAll drains every goroutine's SATB buffer into the mark
// worklist. Called at FinalMark entry (spec §4.7: "STW pause to drain
// the SATB buffer and any remaining gray work"). A buffer that reaches
// capacity is flushed by Shade itself, not through FlushAll.
func FlushAll() {
	satbBufs.Range(func(_, v any) bool {
		b := v.(*perThreadBuf)
		b.mu.Lock()
		flushed := b.buf
		b.buf = nil
		b.mu.Unlock()
		for _, c := range flushed {
			enqueue(c)
		}
		return true
	})
}

// BufferedCount reports the total number of cells sitting in
// per-thread SATB buffers, unflushed. Nothing in the collector calls
// it; the incremental state machine's STW-fallback check counts
// remembered pages (RememberedCount) instead.
func BufferedCount() int {
	total := 0
	satbBufs.Range(func(_, v any) bool {
		b := v.(*perThreadBuf)
		b.mu.Lock()
		total += len(b.buf)
		b.mu.Unlock()
		return true
	})
	return total
}
