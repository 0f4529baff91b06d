// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package incremental

import (
	"context"
	"fmt"
	"testing"

	"github.com/rudogc/gc/internal/heap"
	"github.com/rudogc/gc/internal/policy"
	"github.com/rudogc/gc/internal/roots"
	"github.com/rudogc/gc/internal/typeinfo"
)

// benchAllocate populates the calling goroutine's heap with n live,
// shadow-stack-rooted int cells, the same allocate-then-root sequence
// every public Ptr[T] construction goes through.
func benchAllocate(b *testing.B, n int) {
	b.Helper()
	info := typeinfo.Of[int]()
	th := heap.Current()
	ss := roots.CurrentShadowStack()
	for i := 0; i < n; i++ {
		c, err := th.Allocate(info)
		if err != nil {
			b.Fatalf("Allocate: %v", err)
		}
		ss.Push(c)
	}
}

// BenchmarkSliceLatency measures the wall time of a single incremental
// Tick slice against a fixed-size live heap under varying
// increment_size (spec §4.7), the pause/throughput knob
// benches/incremental_pause.rs originally measured: a larger increment
// drains more of the worklist per slice at the cost of a longer single
// pause.
func BenchmarkSliceLatency(b *testing.B) {
	for _, increment := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("increment_size=%d", increment), func(b *testing.B) {
			benchAllocate(b, 20000)

			cfg := DefaultConfig()
			cfg.IncrementSize = increment
			sm := New(1, cfg, &policy.SafepointGate{}, policy.New())

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := sm.Tick(context.Background(), false); err != nil {
					b.Fatalf("Tick: %v", err)
				}
			}
		})
	}
}
