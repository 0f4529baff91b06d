// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package heap implements the segregated-size-class page allocator
// (spec §4.1, "BiBOP" — Big-Bag-of-Pages). Pages are homogeneous in
// size class; a per-thread heap keeps a current page and a small
// reserve per class, falling back to a global page pool and finally
// to a fresh OS-backed region.
package heap

// PageSize is the size in bytes of one BiBOP page, including its
// header. Chosen to be a multiple of common OS page sizes so that
// page-granular reservations (see region_unix.go) don't waste
// mapping overhead.
const PageSize = 32 * 1024

// headerSize is reserved at the front of every page; only
// PageSize-headerSize bytes are available for cells. The Page header
// itself (see page.go) is a separate Go value, not stored in these
// bytes.
const headerSize = 256

// sizeClasses holds the cell size (header + payload, rounded) for
// each class, smallest first. Classes step by 16 bytes up to 128, by
// 128 bytes up to 1024, and then double while they still fit the
// page's usable span. The boundaries are this collector's own rather
// than a copy of Go's runtime size-class table: its Cell header is
// smaller and fixed, so the class boundaries differ.
var sizeClasses = buildSizeClasses()

func buildSizeClasses() []int {
	var classes []int
	size := 16
	for size <= PageSize-headerSize {
		classes = append(classes, size)
		if size < 128 {
			size += 16
		} else if size < 1024 {
			size += 128
		} else {
			size *= 2
		}
	}
	return classes
}

// NumSizeClasses returns the number of small-object size classes.
func NumSizeClasses() int { return len(sizeClasses) }

// ClassSize returns the cell size in bytes for size class idx.
func ClassSize(idx int) int { return sizeClasses[idx] }

// LargeObjectThreshold is the largest small-object size; anything
// bigger is a large object (spec §4.1: "exceeding the largest size
// class").
func LargeObjectThreshold() int { return sizeClasses[len(sizeClasses)-1] }

// ClassForSize returns the smallest size class that fits need bytes,
// and ok=false if need exceeds every size class (the caller should
// route to the large-object allocator instead).
func ClassForSize(need int) (class int, ok bool) {
	// Linear scan is fine: NumSizeClasses() is small (tens of
	// classes) and this is called once per allocation, not in a
	// hot per-word loop.
	for i, sz := range sizeClasses {
		if sz >= need {
			return i, true
		}
	}
	return 0, false
}

// CellsPerPage returns how many cells of size class idx fit on one
// page.
func CellsPerPage(class int) int {
	return (PageSize - headerSize) / sizeClasses[class]
}
