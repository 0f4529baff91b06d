// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"github.com/rudogc/gc/internal/roots"
)

// CrossHandle is a relocation-stable reference that can be handed to
// another goroutine and resolved back to a strong Ptr only from the
// goroutine that captured it, and only while that goroutine is still
// alive (spec §4.4, §7: "resolving a cross-thread handle from the
// wrong thread when the origin is gone — returns not-resolvable").
// This is the Go shape of the original crate's cross-thread Gc handle,
// meant for handing a managed reference into a spawned goroutine and
// resolving it back on the owning one.
type CrossHandle[T any] struct {
	h *roots.CrossThreadHandle
}

// NewCrossHandle captures the calling goroutine as the handle's origin
// and pins p's cell weakly until Release.
func NewCrossHandle[T any](p Ptr[T]) CrossHandle[T] {
	return CrossHandle[T]{h: roots.NewCrossThreadHandle(p.c)}
}

// Resolve yields a strong Ptr if called from the origin goroutine
// while it and the target cell are both still alive; otherwise ok is
// false. Resolve never panics and never returns unsafe memory — a
// failed resolve is a normal, expected outcome (spec §7), not an
// error.
func (h CrossHandle[T]) Resolve() (p Ptr[T], ok bool) {
	c, ok := h.h.Resolve()
	if !ok {
		return Ptr[T]{}, false
	}
	slot := roots.CurrentShadowStack().Push(c)
	return Ptr[T]{c: c, slot: slot, onStack: true}, true
}

// Release drops the handle's weak pin. Calling Release twice panics,
// the same double-release discipline every other guard type in this
// package enforces.
func (h *CrossHandle[T]) Release() { h.h.Release() }
