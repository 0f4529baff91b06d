// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !unix

package heap

import "unsafe"

// newRegion is the portable fallback for platforms without
// golang.org/x/sys/unix mmap support: it pins a Go-heap byte slice and
// never explicitly unmaps it, relying on the host Go runtime's own GC
// to reclaim it once the last region reference drops.
func newRegion(size uintptr) (*region, error) {
	b := make([]byte, size)
	return &region{
		base: unsafe.Pointer(&b[0]),
		size: size,
		keep: b,
	}, nil
}
