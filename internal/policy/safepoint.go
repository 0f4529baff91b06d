// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package policy

import "sync"

// SafepointGate implements spec §4.9's mutator-declared safepoints: a
// mutator calls Safepoint at a point where it holds no partially
// constructed managed state, and the coordinator can request that
// every mutator currently inside (or about to enter) a safepoint
// block until a STW phase completes.
//
// This is an ordinary reader/writer mutex turned sideways: a mutator
// at a safepoint is a "reader" (many can be there at once, and none
// of them block each other); the collector arriving at a STW phase is
// the sole "writer," and sync.RWMutex already guarantees a writer
// waits for every current reader to leave and excludes new ones until
// it unlocks. No third-party rendezvous primitive in the example pack
// models this more directly than the standard library already does.
type SafepointGate struct {
	mu sync.RWMutex
}

// Safepoint blocks only if a STW phase is currently in progress
// (Begin has been called and End has not). Called by mutator code at
// its own chosen cadence; spec §5 lists "safepoint calls" as one of
// the four suspension points.
func (g *SafepointGate) Safepoint() {
	g.mu.RLock()
	g.mu.RUnlock()
}

// Begin requests a STW phase: blocks until every mutator currently
// inside Safepoint has left, then excludes new ones from entering
// until End is called.
func (g *SafepointGate) Begin() { g.mu.Lock() }

// End releases a STW phase begun with Begin.
func (g *SafepointGate) End() { g.mu.Unlock() }
