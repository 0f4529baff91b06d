// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// goroutineID extracts the running goroutine's id by parsing the
// "goroutine N [...]" header every runtime.Stack dump starts with.
// There is no supported Go API for this; it is the same technique
// small goroutine-local-storage shims in the wider ecosystem use. It
// runs on every call to Current (and so on every managed allocation,
// to find or lazily create that goroutine's ThreadHeap), as well as on
// every CurrentTCB and GoroutineID call.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return 0
	}
	id, _ := strconv.ParseUint(string(b[:i]), 10, 64)
	return id
}

// GoroutineID exposes goroutineID to other internal packages (roots'
// cross-thread handles need to compare the resolving goroutine against
// the handle's origin).
func GoroutineID() uint64 { return goroutineID() }

var threadHeaps sync.Map // goroutine id (uint64) -> *ThreadHeap

// Current returns (lazily creating) the ThreadHeap for the calling
// goroutine, matching spec §6: "globals initialized lazily on first
// managed allocation." Every managed allocation funnels through this.
func Current() *ThreadHeap {
	gid := goroutineID()
	if v, ok := threadHeaps.Load(gid); ok {
		return v.(*ThreadHeap)
	}
	h := NewThreadHeap()
	actual, _ := threadHeaps.LoadOrStore(gid, h)
	return actual.(*ThreadHeap)
}

// DetachCurrent drains and forgets the calling goroutine's heap. Spec
// §4.1 says "on thread exit the heap is drained into an orphan set";
// Go gives user code no exit hook for a goroutine, so the mutator
// itself must call this before the goroutine returns. Skipping it is
// not unsafe (the heap's pages simply become unreachable garbage from
// rudogc's point of view until the process exits, the way a
// never-closed handle scope guard would leak — see roots.Guard), but
// it does mean those pages never enter the orphan set and never get
// swept; document this as a user-visible hazard, the goroutine
// equivalent of spec §4.4's root-guard warning.
func DetachCurrent() {
	gid := goroutineID()
	if v, ok := threadHeaps.LoadAndDelete(gid); ok {
		v.(*ThreadHeap).Exit()
	}
	killTCB(gid)
}
