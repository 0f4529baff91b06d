// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package roots

import (
	"testing"

	"github.com/rudogc/gc/internal/cell"
)

func TestShadowStackPushScanPop(t *testing.T) {
	s := &ShadowStack{}
	var a, b cell.Cell
	ia := s.Push(&a)
	ib := s.Push(&b)

	seen := map[*cell.Cell]bool{}
	s.Scan(func(c *cell.Cell) { seen[c] = true })
	if !seen[&a] || !seen[&b] {
		t.Fatalf("Scan must visit every pushed root")
	}

	s.Pop(ib)
	seen = map[*cell.Cell]bool{}
	s.Scan(func(c *cell.Cell) { seen[c] = true })
	if !seen[&a] {
		t.Fatalf("popping b must not remove a")
	}
	if len(seen) != 1 {
		t.Fatalf("expected exactly one remaining root, got %d", len(seen))
	}

	s.Pop(ia)
	seen = map[*cell.Cell]bool{}
	s.Scan(func(c *cell.Cell) { seen[c] = true })
	if len(seen) != 0 {
		t.Fatalf("expected an empty shadow stack, got %d roots", len(seen))
	}
}

func TestHandleScopeNestingAndClose(t *testing.T) {
	defer func(prev func() uint64) { goroutineIDFunc = prev }(goroutineIDFunc)
	goroutineIDFunc = func() uint64 { return 777 }

	outer := OpenScope()
	var oc cell.Cell
	outer.NewSlot(&oc)

	inner := OpenScope()
	var ic cell.Cell
	inner.NewSlot(&ic)

	seen := map[*cell.Cell]bool{}
	inner.ScanChain(func(c *cell.Cell) { seen[c] = true })
	if !seen[&oc] || !seen[&ic] {
		t.Fatalf("ScanChain on the inner scope must also visit the outer scope's slots")
	}

	CloseScope(inner)
	seen = map[*cell.Cell]bool{}
	outer.Scan(func(c *cell.Cell) { seen[c] = true })
	if !seen[&oc] {
		t.Fatalf("closing the inner scope must not disturb the outer scope's own slots")
	}

	CloseScope(outer)
}

func TestHandleScopeCloseOutOfOrderPanics(t *testing.T) {
	defer func(prev func() uint64) { goroutineIDFunc = prev }(goroutineIDFunc)
	goroutineIDFunc = func() uint64 { return 778 }

	outer := OpenScope()
	_ = OpenScope()

	defer func() {
		if recover() == nil {
			t.Fatalf("closing a non-innermost scope must panic")
		}
	}()
	CloseScope(outer)
}

func TestHandleScopeExceedsCapacityPanics(t *testing.T) {
	defer func(prev func() uint64) { goroutineIDFunc = prev }(goroutineIDFunc)
	goroutineIDFunc = func() uint64 { return 779 }

	s := OpenScope()
	defer func() {
		r := recover()
		CloseScope(s)
		if r == nil {
			t.Fatalf("expected a panic once the scope's fixed capacity is exceeded")
		}
	}()
	for i := 0; i < blockSize*maxBlocksPerScope+1; i++ {
		var c cell.Cell
		s.NewSlot(&c)
	}
}
