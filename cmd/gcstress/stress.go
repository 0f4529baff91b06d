// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ResultKind classifies one worker's outcome, the same three-way split
// stress2's Stress.Run reports for subprocess runs, reinterpreted here
// for in-process allocation workloads: Pass means every invariant
// check the workload ran held; Fail means one didn't; Flake means the
// workload's context expired mid-run (no invariant was actually
// violated, so it isn't counted as a failure).
type ResultKind int

const (
	ResultPass ResultKind = iota
	ResultFail
	ResultFlake
)

// workload is one repeatable unit of GC-exercising work: allocate,
// mutate, collect, and check invariants, returning the first violation
// found (or nil).
type workload func(ctx context.Context, workerID int, iter int) error

// Stress runs a workload repeatedly and in parallel, the same shape as
// stress2.Stress but driving in-process goroutines instead of
// subprocesses: no command, no log files, no timeout-per-run (a single
// overall Duration budget instead).
type Stress struct {
	Parallelism int
	Iterations  int // per worker, 0 = unbounded (governed by Duration only)
	Duration    time.Duration

	Workload workload

	MaxFails int // stop after this many failing iterations, 0 = no limit

	Interrupt <-chan struct{}
}

type stressResult struct {
	workerID int
	iter     int
	err      error
}

// Run fans Parallelism workers out across s.Workload until Duration
// elapses, Iterations per worker is reached, MaxFails failures have
// been seen, or Interrupt fires, then reports the aggregate result.
func (s *Stress) Run(reporter *Reporter) ResultKind {
	ctx := context.Background()
	var cancel context.CancelFunc
	if s.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.Duration)
		defer cancel()
	} else {
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
	}

	go func() {
		select {
		case <-s.Interrupt:
			cancel()
		case <-ctx.Done():
		}
	}()

	results := make(chan stressResult, s.Parallelism)
	var wg sync.WaitGroup
	for w := 0; w < s.Parallelism; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runWorker(ctx, w, results)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var passes, fails, flakes int
	reporter.StartStatus()
	for res := range results {
		switch {
		case res.err == context.Canceled || res.err == context.DeadlineExceeded:
			flakes++
		case res.err != nil:
			fails++
			fmt.Fprintf(reporter, "worker %d iteration %d: %v\n", res.workerID, res.iter, res.err)
			if s.MaxFails > 0 && fails >= s.MaxFails {
				cancel()
			}
		default:
			passes++
		}
		reporter.Status(fmt.Sprintf("%d passes, %d fails, %d flakes", passes, fails, flakes))
	}
	reporter.StopStatus()

	switch {
	case fails > 0:
		return ResultFail
	case passes > 0:
		return ResultPass
	default:
		return ResultFlake
	}
}

func (s *Stress) runWorker(ctx context.Context, id int, results chan<- stressResult) {
	for iter := 0; s.Iterations <= 0 || iter < s.Iterations; iter++ {
		select {
		case <-ctx.Done():
			results <- stressResult{id, iter, ctx.Err()}
			return
		default:
		}
		results <- stressResult{id, iter, s.Workload(ctx, id, iter)}
	}
}
