// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package incremental implements the phase state machine of spec
// §4.7: Idle -> Snapshot -> Marking -> FinalMark -> Sweeping -> Idle,
// with slice budgeting and STW fallback.
package incremental

import "time"

// Config holds the enumerated options of spec §4.7/§6.
type Config struct {
	Enabled             bool
	IncrementSize       int           // incremental.increment_size
	SliceTimeout        time.Duration // incremental.slice_timeout_ms
	MaxDirtyPages       int           // incremental.max_dirty_pages
	RememberedBufferLen int           // incremental.remembered_buffer_len
}

// DefaultConfig matches the defaults a freshly initialized collector
// uses before any SetIncrementalConfig call (spec §6: "initialized
// lazily on first managed allocation").
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		IncrementSize:       2000,
		SliceTimeout:        2 * time.Millisecond,
		MaxDirtyPages:       4096,
		RememberedBufferLen: 256,
	}
}

// FallbackReason enumerates why an incremental cycle gave up on
// slicing and finished the mark phase under STW (spec §4.7).
type FallbackReason int

const (
	FallbackNone FallbackReason = iota
	FallbackBudgetExhausted
	FallbackDirtyPageOverflow
	FallbackAllocationPressure
	FallbackExplicitTrigger
)

func (r FallbackReason) String() string {
	switch r {
	case FallbackBudgetExhausted:
		return "budget exhausted"
	case FallbackDirtyPageOverflow:
		return "dirty-page overflow"
	case FallbackAllocationPressure:
		return "allocation pressure"
	case FallbackExplicitTrigger:
		return "explicit user trigger"
	default:
		return "none"
	}
}
