// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package typeinfo erases the payload type of a managed cell while
// retaining enough of a vtable to trace and destroy it.
//
// The derive macro that would normally generate a Trace
// implementation per user type is out of scope (spec §1, "external
// collaborators"); this package is the thin runtime surface such a
// macro calls into; it is also what a manual Trace implementation
// targets directly. The erasure trick mirrors the
// interface-as-(type,data)-pair layout split/value.go relies on:
// we keep a function pointer pair instead of reflect.Type, since we
// need to call user code (Trace, destructor) rather than just know a
// size.
package typeinfo

import (
	"sync"
	"unsafe"
)

// TraceFunc visits every managed reference a payload of some type T
// transitively owns. payload points at the T value embedded in its
// cell.
type TraceFunc func(payload unsafe.Pointer, visit func(unsafe.Pointer))

// FinalizeFunc runs a payload's destructor in place. It must not
// retain payload past return.
type FinalizeFunc func(payload unsafe.Pointer)

// Info is the per-type descriptor stored once per instantiation of
// Ptr[T] / Weak[T] and shared by every cell of that type. It is built
// once (see Of) and is otherwise immutable, so it needs no
// synchronization to read concurrently from many mark workers.
type Info struct {
	Size     uintptr
	Align    uintptr
	Trace    TraceFunc
	Finalize FinalizeFunc
	Name     string
}

// registry caches one Info per concrete Go type so repeated calls to
// Of for the same T don't re-walk reflection or re-allocate.
//
// Keyed by a type-erased key (an empty-interface type word), the same
// trick split.Value uses to get a stable identity for a reflect type
// without paying for a map[reflect.Type] lookup on every allocation.
type registryKey struct {
	typ unsafe.Pointer
}

var (
	infoMu    sync.RWMutex
	infoCache = map[any]*Info{}
)

// Register associates Info with T, keyed by T's type (a nil *T boxed
// in an interface, which is hashable whatever T is). Called once per
// T, typically from a package init or the first Of[T] call (see
// gc.Ptr's lazy registration).
func Register[T any](trace func(t *T, visit func(unsafe.Pointer)), finalize func(t *T)) *Info {
	var zero T
	key := any((*T)(nil))
	infoMu.RLock()
	info, ok := infoCache[key]
	infoMu.RUnlock()
	if ok {
		return info
	}
	info = &Info{
		Size:  unsafe.Sizeof(zero),
		Align: unsafe.Alignof(zero),
		Trace: func(payload unsafe.Pointer, visit func(unsafe.Pointer)) {
			if trace == nil {
				return
			}
			trace((*T)(payload), visit)
		},
		Finalize: func(payload unsafe.Pointer) {
			if finalize == nil {
				return
			}
			finalize((*T)(payload))
		},
	}
	infoMu.Lock()
	if existing, ok := infoCache[key]; ok {
		infoMu.Unlock()
		return existing
	}
	infoCache[key] = info
	infoMu.Unlock()
	return info
}

// Of returns the cached Info for T, registering a no-op tracer if T
// has never been registered. Types with no managed fields (leaves of
// the object graph) are never required to call Register explicitly;
// Of synthesizes a trace-nothing descriptor for them.
func Of[T any]() *Info {
	key := any((*T)(nil))
	infoMu.RLock()
	info, ok := infoCache[key]
	infoMu.RUnlock()
	if ok {
		return info
	}
	return Register[T](nil, nil)
}
