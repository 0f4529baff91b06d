// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"github.com/rudogc/gc/internal/cell"
	"github.com/rudogc/gc/internal/mark"
)

// Ephemeron pairs a key and a value such that the value is kept
// reachable only as long as the key is reachable through some other,
// non-ephemeron path (spec §3, §9). The mark engine's fix-point pass
// (internal/mark/ephemeron.go) shades the value once the key is
// proven live; a key that never becomes reachable leaves the value to
// ordinary reachability, which may reclaim it.
type Ephemeron[K, V any] struct {
	key   *cell.Cell
	value *cell.Cell
}

// NewEphemeron registers key/value with the process-wide ephemeron
// table. Both key and value must already be live Ptrs; NewEphemeron
// does not take ownership of either (it registers their cells, not
// the Ptr handles themselves — callers keep managing key and value's
// own lifetimes as usual).
func NewEphemeron[K, V any](key Ptr[K], value Ptr[V]) Ephemeron[K, V] {
	mark.RegisterEphemeron(key.c, value.c)
	return Ephemeron[K, V]{key: key.c, value: value.c}
}

// Value returns the ephemeron's value payload if the key is still
// alive, and ok=false otherwise.
func (e Ephemeron[K, V]) Value() (v *V, ok bool) {
	if e.key.Dead() {
		return nil, false
	}
	return (*V)(e.value.Payload()), true
}

// Release removes this key/value pair from the ephemeron table.
func (e *Ephemeron[K, V]) Release() {
	mark.UnregisterEphemeron(e.key, e.value)
}
