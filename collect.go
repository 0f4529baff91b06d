// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"context"

	"github.com/rudogc/gc/internal/incremental"
	"github.com/rudogc/gc/internal/policy"
)

// Kind selects what sort of collection Collect runs (spec §6,
// "collect (minor/major/full)").
type Kind int

const (
	// Auto consults the installed collect-condition predicate and the
	// byte-threshold heuristics and runs whatever they decide, or does
	// nothing if neither wants a cycle.
	Auto Kind = iota
	// Minor collects only the young generation, rooted at exact roots
	// plus the generational remembered set.
	Minor
	// Major collects the whole heap, still subject to the configured
	// incremental pacing.
	Major
	// Full collects the whole heap under pure stop-the-world,
	// regardless of the incremental configuration.
	Full
)

// Collect runs a collection of the requested Kind and blocks until it
// completes (spec §5: "explicit full collection blocks until
// complete" — Collect extends that guarantee to every Kind, since an
// incremental Minor/Major cycle still has to finish its own slices
// internally before this call returns; only the pacing of those
// slices, not the blocking behavior of Collect itself, differs from
// Full).
func Collect(ctx context.Context, kind Kind) error {
	c := instance()
	switch kind {
	case Minor:
		return c.sm.Collect(ctx, false)
	case Major:
		return c.sm.Collect(ctx, true)
	case Full:
		return c.sm.CollectFull(ctx)
	default:
		d := c.pol.Decide()
		if d == policy.DecisionNone {
			return nil
		}
		return c.sm.Collect(ctx, d == policy.DecisionMajor)
	}
}

// IncrementalConfig re-exports the incremental tuning knobs of spec
// §4.7/§6 at the public API surface.
type IncrementalConfig = incremental.Config

// DefaultIncrementalConfig returns the collector's built-in defaults.
func DefaultIncrementalConfig() IncrementalConfig { return incremental.DefaultConfig() }

// SetIncrementalConfig applies cfg to the collector (spec §6,
// "set_incremental_config"). Not safe to call concurrently with an
// in-progress Collect/Tick from another goroutine.
func SetIncrementalConfig(cfg IncrementalConfig) {
	instance().sm.SetConfig(cfg)
}

// SetCollectCondition installs a user predicate consulted by Auto
// collections and by the allocation-triggered pacing hook (spec §6,
// "set_collect_condition"; spec §4.9, "an externally settable
// predicate").
func SetCollectCondition(fn func() bool) {
	instance().pol.SetCollectCondition(fn)
}

// Phase reports the incremental state machine's current phase, for
// diagnostics and tests.
func Phase() incremental.Phase {
	return instance().sm.Phase()
}
