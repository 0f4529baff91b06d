// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unix

package heap

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/rudogc/gc/gcerr"
)

// newRegion reserves a zeroed, page-aligned anonymous mapping of size
// bytes. Using mmap instead of make([]byte, size) means a fully
// reclaimed large object's region can be handed back to the kernel
// with munmap (Page.RegionRelease / Page.Release), rather than merely
// dropping a Go-heap reference and waiting on the host process's own
// allocator. All-dead small pages go to the global page pool instead
// and are not unmapped.
func newRegion(size uintptr) (*region, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, gcerr.New(gcerr.Exhaustion, "heap.newRegion", "mmap failed", err)
	}
	r := &region{
		base: unsafe.Pointer(&b[0]),
		size: size,
	}
	r.release = func() {
		unix.Munmap(b)
	}
	return r, nil
}
