// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"sync"
	"sync/atomic"
)

// TCB is a thread (goroutine) control block: the thing a
// CrossThreadHandle (spec §3, §4.4) keeps a weak reference to so it
// can tell whether its origin thread is still around.
type TCB struct {
	GID   uint64
	alive int32
}

func (t *TCB) IsAlive() bool { return atomic.LoadInt32(&t.alive) != 0 }

var tcbs sync.Map // goroutine id -> *TCB

// CurrentTCB returns (creating if needed) the calling goroutine's TCB.
func CurrentTCB() *TCB {
	gid := goroutineID()
	if v, ok := tcbs.Load(gid); ok {
		return v.(*TCB)
	}
	t := &TCB{GID: gid, alive: 1}
	actual, _ := tcbs.LoadOrStore(gid, t)
	return actual.(*TCB)
}

// killTCB marks the calling goroutine's TCB dead, called from
// DetachCurrent.
func killTCB(gid uint64) {
	if v, ok := tcbs.Load(gid); ok {
		atomic.StoreInt32(&v.(*TCB).alive, 0)
	}
}
