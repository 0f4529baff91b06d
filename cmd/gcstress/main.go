// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command gcstress repeatedly exercises the collector's allocation,
// collection, weak-reference, and ephemeron paths from many goroutines
// at once, the same repeated-trial idea as aclements/go-misc/stress2
// applied to in-process workloads instead of subprocesses: there is no
// command to relaunch and no log directory to fill, just a workload
// function called in a tight loop under a parallel Stress harness
// until it fails, runs out its budget, or is interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"time"
)

// flagWorkers is a custom flag.Value accepting either a positive
// integer or the literal "auto" (GOMAXPROCS), the same shape as
// stress2's FlagLimit accepting a count or "inf".
type flagWorkers int

func (f *flagWorkers) String() string {
	if *f <= 0 {
		return "auto"
	}
	return fmt.Sprint(int(*f))
}

func (f *flagWorkers) Set(s string) error {
	if s == "auto" || s == "" {
		*f = 0
		return nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n <= 0 {
		return fmt.Errorf("workers must be a positive integer or %q, got %q", "auto", s)
	}
	*f = flagWorkers(n)
	return nil
}

var (
	workers     flagWorkers
	duration    = flag.Duration("duration", 10*time.Second, "total time to stress for")
	iterations  = flag.Int("iterations", 0, "iterations per worker (0 = unbounded, governed by -duration)")
	maxFails    = flag.Int("maxfails", 1, "stop after this many failing iterations (0 = no limit)")
	workloadArg = flag.String("workload", "all", `which workload to run: "tree", "ephemeron", or "all"`)
)

func main() {
	flag.Var(&workers, "workers", `parallel workers, a positive integer or "auto" for GOMAXPROCS`)
	flag.Parse()

	w := int(workers)
	if w <= 0 {
		w = defaultWorkers()
	}

	wl, err := selectWorkload(*workloadArg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gcstress:", err)
		os.Exit(2)
	}

	interrupt := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		close(interrupt)
	}()

	s := &Stress{
		Parallelism: w,
		Iterations:  *iterations,
		Duration:    *duration,
		Workload:    wl,
		MaxFails:    *maxFails,
		Interrupt:   interrupt,
	}

	reporter := NewStdoutReporter()
	result := s.Run(reporter)

	switch result {
	case ResultPass:
		fmt.Println("PASS")
	case ResultFail:
		fmt.Println("FAIL")
		os.Exit(1)
	case ResultFlake:
		fmt.Println("no iterations completed (flake or interrupted before any result)")
		os.Exit(1)
	}
}

func selectWorkload(name string) (workload, error) {
	switch name {
	case "tree":
		return treeWorkload, nil
	case "ephemeron":
		return ephemeronWorkload, nil
	case "all":
		return combinedWorkload, nil
	default:
		return nil, fmt.Errorf(`unknown -workload %q, want "tree", "ephemeron", or "all"`, name)
	}
}

// combinedWorkload alternates between the tree and ephemeron
// workloads by iteration parity, so a single stress run exercises both
// the generational/weak-reference path and the ephemeron fix-point
// path concurrently across workers.
func combinedWorkload(ctx context.Context, workerID int, iter int) error {
	if iter%2 == 0 {
		return treeWorkload(ctx, workerID, iter)
	}
	return ephemeronWorkload(ctx, workerID, iter)
}

func defaultWorkers() int {
	if n := runtime.GOMAXPROCS(0); n > 0 {
		return n
	}
	return 1
}
