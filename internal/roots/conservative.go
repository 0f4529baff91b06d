// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package roots

import (
	"unsafe"

	"github.com/rudogc/gc/internal/cell"
	"github.com/rudogc/gc/internal/heap"
)

// ScanRegion walks every pointer-aligned word in [base, base+size) and
// treats each as a candidate address, visiting any cell the heap's
// small-page or large-object maps can resolve it to (spec §4.4.3).
//
// False positives — a word that happens to look like a live address
// but isn't really a reference — are tolerated: the cell is kept
// alive one extra cycle. False negatives are forbidden, which is why
// this walks every aligned word rather than trying to be clever about
// which words "look like" pointers.
//
// This is the fallback for memory the trace protocol can't reach
// directly: captured state behind a type-erased closure or any other
// opaque region a caller hands to the root gc package's VisitRegion.
func ScanRegion(base unsafe.Pointer, size uintptr, visit func(*cell.Cell)) {
	const wordSize = unsafe.Sizeof(uintptr(0))
	n := size / wordSize
	for i := uintptr(0); i < n; i++ {
		word := *(*uintptr)(unsafe.Add(base, i*wordSize))
		if word == 0 {
			continue
		}
		if c, ok := heap.LookupCell(word); ok {
			visit(c)
		}
	}
}
