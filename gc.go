// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gc is an embeddable, tracing garbage collector for Go
// values that opt in to managed allocation: a tri-color incremental
// mark-sweep collector with a generational write barrier, a BiBOP
// size-class heap, and handle-scope/shadow-stack root tracking,
// layered the way the spec in this repository's root describes.
//
// Every other package under this module is an implementation detail
// internal/ hides; gc is the only public surface. A process that
// never imports gc pays nothing: every collector-wide structure
// (thread heaps, the coordinator's workers, the incremental state
// machine) is created lazily on first managed allocation.
package gc

import (
	"context"
	"runtime"
	"sync"

	"github.com/rudogc/gc/internal/incremental"
	"github.com/rudogc/gc/internal/policy"
)

// collector bundles every process-wide singleton the public API
// drives: the phase state machine, the trigger policy, and the
// safepoint gate they share with mutator code.
type collector struct {
	sm   *incremental.StateMachine
	pol  *policy.Policy
	gate *policy.SafepointGate
}

var (
	instanceOnce sync.Once
	theCollector *collector
)

// instance returns (lazily creating) the process-wide collector.
func instance() *collector {
	instanceOnce.Do(func() {
		gate := &policy.SafepointGate{}
		pol := policy.New()
		workers := runtime.GOMAXPROCS(0)
		sm := incremental.New(workers, incremental.DefaultConfig(), gate, pol)
		theCollector = &collector{sm: sm, pol: pol, gate: gate}
	})
	return theCollector
}

// notifyAllocation feeds the trigger policy and, if it decides a
// cycle is due, advances the incremental state machine by one slice
// (spec §5, suspension point 2: "entry to allocation when an
// incremental slice is due"). Called from every Ptr construction.
func notifyAllocation(nbytes int64) {
	c := instance()
	c.pol.NotifyAllocation(nbytes)
	if d := c.pol.Decide(); d != policy.DecisionNone {
		_, _ = c.sm.Tick(context.Background(), d == policy.DecisionMajor)
	}
}

// Safepoint is a mutator-declared point where the calling goroutine
// holds no partially constructed managed state (spec §4.9, §5). It
// blocks while a STW phase (Snapshot or FinalMark) is in progress and
// returns at once otherwise. A STW phase waits only for goroutines
// currently inside Safepoint; it does not wait for other mutator
// goroutines to reach one, and those keep running through the phase.
func Safepoint() {
	instance().gate.Safepoint()
}
