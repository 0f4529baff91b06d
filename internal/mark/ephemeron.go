// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mark

import (
	"sync"

	"github.com/rudogc/gc/internal/cell"
)

// ephemeronEntry is one key/value pair (spec §3, §9): value is
// reachable only if key is reachable through some non-ephemeron path.
type ephemeronEntry struct {
	key   *cell.Cell
	value *cell.Cell
}

var ephemerons = struct {
	mu      sync.Mutex
	entries []*ephemeronEntry
}{}

// RegisterEphemeron adds a key/value pair to the process-wide
// ephemeron table (SPEC_FULL.md §C.3). Entries whose key has died
// stay in the table: FixPoint skips them (the value gets no help from
// that pass and falls back to ordinary reachability), and only
// UnregisterEphemeron removes an entry.
func RegisterEphemeron(key, value *cell.Cell) {
	ephemerons.mu.Lock()
	defer ephemerons.mu.Unlock()
	ephemerons.entries = append(ephemerons.entries, &ephemeronEntry{key, value})
}

// UnregisterEphemeron removes a specific key/value pair, e.g. when the
// owning Ephemeron[K, V] handle itself is dropped.
func UnregisterEphemeron(key, value *cell.Cell) {
	ephemerons.mu.Lock()
	defer ephemerons.mu.Unlock()
	for i, e := range ephemerons.entries {
		if e.key == key && e.value == value {
			ephemerons.entries = append(ephemerons.entries[:i], ephemerons.entries[i+1:]...)
			return
		}
	}
}

// FixPoint runs the repeat-until-no-change pass spec §9 requires:
// each round, any ephemeron whose key has been marked reachable
// (black or gray) shades its value; the loop repeats until a round
// shades nothing new, which bounds it by the number of distinct
// ephemerons (each shades at most once).
//
// Called by the incremental state machine during FinalMark
// (runFinalMarkLocked), after the SATB buffer and the remaining gray
// work have been drained, so that newly-reachable values get a chance
// to be traced before the worklist is considered drained for good.
func (e *Engine) FixPoint() {
	for {
		progressed := false
		ephemerons.mu.Lock()
		snapshot := append([]*ephemeronEntry(nil), ephemerons.entries...)
		ephemerons.mu.Unlock()

		for _, entry := range snapshot {
			if entry.key.Dead() {
				continue
			}
			if entry.key.Color() == cell.White {
				continue
			}
			if entry.value.Color() == cell.White {
				e.Shade(entry.value)
				progressed = true
			}
		}

		// Drain whatever the shading above produced before
		// deciding whether another round is needed, since a
		// shaded value's own trace may make yet another
		// ephemeron's key reachable.
		for {
			_, res := e.Drain(0, 1<<20)
			if res == DrainEmpty {
				break
			}
		}

		if !progressed {
			return
		}
	}
}
