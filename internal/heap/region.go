// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import "unsafe"

// region is a raw, page-aligned, zero-initialized block of memory
// backing one or more Page headers. It is the allocator's unit of OS
// interaction: on platforms with golang.org/x/sys/unix support
// (region_unix.go) a region is mmap'd directly so that pages can
// eventually be returned to the OS with munmap; elsewhere
// (region_generic.go) it's backed by a pinned Go byte slice.
//
// release is nil for Go-slice-backed regions (the GC reclaims them
// normally once unreferenced) and non-nil for mmap'd regions, where
// skipping munmap would leak address space.
type region struct {
	base    unsafe.Pointer
	size    uintptr
	keep    []byte // retains a Go-heap-backed region; nil for mmap'd regions
	release func()
}

func (r *region) Base() unsafe.Pointer { return r.base }

// Release returns the region's memory to the OS (or drops the last Go
// reference to it). Called once a large object is fully reclaimed;
// small pages go back to the global page pool instead and are not
// released.
func (r *region) Release() {
	if r.release != nil {
		r.release()
	}
	r.keep = nil
}
