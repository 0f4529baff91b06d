// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package coordinator drives the parallel mark phase (spec §4.6,
// §4.9): it runs a worker pool over the mark engine's deques, and
// detects quiescence (every worker simultaneously idle, no stealing
// attempt finding work) to end the phase. Roots are not partitioned
// among workers up front: they sit on the engine's shared overflow
// deque, which every worker steals from.
//
// The worker pool itself is built on golang.org/x/sync/errgroup,
// generalizing the pool-of-goroutines shape gopool/pool.go uses for
// build workers and the errgroup.WithContext wiring
// dashquery/main.go uses for a bounded fan-out.
package coordinator

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rudogc/gc/internal/mark"
)

// Coordinator owns a mark.Engine and a fixed worker count, reentrant
// across phases (spec §9: "parallel marking applies to any
// non-concurrent phase ... The coordinator must be reentrant across
// phases").
type Coordinator struct {
	Engine  *mark.Engine
	Workers int
}

// New creates a Coordinator with workers mark workers (defaulting to
// GOMAXPROCS if workers <= 0).
func New(workers int) *Coordinator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Coordinator{
		Engine:  mark.NewEngine(workers),
		Workers: workers,
	}
}

// RunToExhaustion runs every worker over whatever the engine's deques
// already hold (roots included) until quiescence: all workers
// simultaneously report empty and no steal attempt finds work. This implements the full (non-sliced) drain
// used by STW Snapshot/FinalMark passes and by the non-incremental
// collector.
func (c *Coordinator) RunToExhaustion(ctx context.Context) error {
	return c.drainAll(ctx, -1, 0)
}

// RunSlice drains up to increment objects total across the worker
// pool, or until timeout elapses, whichever comes first, and reports
// whether the worklist was fully drained (quiescent) by the time the
// slice ended. This backs the Marking phase's bounded slices (spec
// §4.7).
func (c *Coordinator) RunSlice(ctx context.Context, increment int, timeout time.Duration) (quiescent bool, err error) {
	sliceCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		sliceCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err = c.drainAll(sliceCtx, increment, timeout)
	return c.Engine.Idle(), err
}

// drainAll is the shared worker fan-out. budget < 0 means unlimited
// (run to quiescence); budget >= 0 caps total objects drained across
// all workers combined, matching incremental.increment_size's
// definition as a whole-slice bound rather than a per-worker one.
func (c *Coordinator) drainAll(ctx context.Context, budget int, timeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	var remaining int32 = -1
	if budget >= 0 {
		remaining = int32(budget)
	}

	var idleCount int32
	n := int32(c.Workers)

	for w := 0; w < c.Workers; w++ {
		w := w
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				default:
				}

				chunk := 64
				if budget >= 0 {
					chunk = claimChunk(&remaining, 64)
					if chunk == 0 {
						// Budget spent: leave counted as idle so
						// workers still polling can reach quiescence.
						atomic.AddInt32(&idleCount, 1)
						return nil
					}
				}

				scanned, result := c.Engine.Drain(w, chunk)
				if budget >= 0 && scanned < chunk {
					// Return the unused portion of the chunk.
					atomic.AddInt32(&remaining, int32(chunk-scanned))
				}

				if result == mark.DrainBudgetExhausted {
					continue
				}

				// This worker's deque (and steal attempts) came up
				// empty. Mark idle and poll for either new work or
				// everyone simultaneously idle.
				atomic.AddInt32(&idleCount, 1)
				for {
					select {
					case <-gctx.Done():
						atomic.AddInt32(&idleCount, -1)
						return nil
					default:
					}
					if atomic.LoadInt32(&idleCount) == n {
						return nil // quiescent: every worker idle at once
					}
					if budget >= 0 && claimChunk(&remaining, 1) == 0 {
						return nil // budget spent
					}
					if c.Engine.TryDrainOne(w) {
						atomic.AddInt32(&idleCount, -1)
						break
					}
					if budget >= 0 {
						atomic.AddInt32(&remaining, 1)
					}
					runtime.Gosched()
				}
			}
		})
	}

	return g.Wait()
}

// claimChunk atomically takes up to want units from remaining,
// clamped to what's actually left (which may be zero or negative if
// another worker already exhausted it).
func claimChunk(remaining *int32, want int32) int {
	for {
		old := atomic.LoadInt32(remaining)
		if old <= 0 {
			return 0
		}
		claim := want
		if old < claim {
			claim = old
		}
		if atomic.CompareAndSwapInt32(remaining, old, old-claim) {
			return int(claim)
		}
	}
}
