// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package incremental

import (
	"context"
	"log"
	"sync"
	"unsafe"

	"github.com/rudogc/gc/internal/barrier"
	"github.com/rudogc/gc/internal/cell"
	"github.com/rudogc/gc/internal/coordinator"
	"github.com/rudogc/gc/internal/mark"
	"github.com/rudogc/gc/internal/policy"
	"github.com/rudogc/gc/internal/roots"
	"github.com/rudogc/gc/internal/sweep"
)

// Phase is one state of the cycle state machine (spec §4.7).
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSnapshot
	PhaseMarking
	PhaseFinalMark
	PhaseSweeping
)

func (p Phase) String() string {
	switch p {
	case PhaseSnapshot:
		return "snapshot"
	case PhaseMarking:
		return "marking"
	case PhaseFinalMark:
		return "final-mark"
	case PhaseSweeping:
		return "sweeping"
	default:
		return "idle"
	}
}

// StateMachine drives one collector's Idle->Snapshot->Marking->
// FinalMark->Sweeping->Idle cycle (spec §4.7). It owns the parallel
// coordinator and exposes both a fully-synchronous Collect (for the
// non-incremental and explicit-collect paths) and a sliced Tick (for
// the incremental path, meant to be called from an allocation hook or
// an explicit mutator safepoint).
type StateMachine struct {
	mu    sync.Mutex
	phase Phase
	major bool

	cfg   Config
	gate  *policy.SafepointGate
	pol   *policy.Policy
	coord *coordinator.Coordinator

	consecutiveExhausted int
	lastFallback         FallbackReason
	stats                sweep.Stats
}

// New creates a StateMachine with workers parallel mark workers,
// sharing gate with the rest of the collector for STW coordination and
// pol so a completed cycle can reset the trigger heuristic's counters
// (spec §4.9).
func New(workers int, cfg Config, gate *policy.SafepointGate, pol *policy.Policy) *StateMachine {
	return &StateMachine{
		cfg:   cfg,
		gate:  gate,
		pol:   pol,
		coord: coordinator.New(workers),
	}
}

// SetConfig swaps the incremental tuning knobs. Not safe to call
// concurrently with an in-progress cycle: s.mu guards only the swap
// itself, and the root gc package's SetIncrementalConfig calls this
// directly with no further serialization.
func (s *StateMachine) SetConfig(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	barrier.SetBufferCapacity(cfg.RememberedBufferLen)
}

// Phase reports the current state machine phase.
func (s *StateMachine) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Engine exposes the mark engine backing this state machine's
// coordinator, for root sources (e.g. a conservative region visit)
// that want to shade a cell outside of the phases that already drive
// draining themselves.
func (s *StateMachine) Engine() *mark.Engine { return s.coord.Engine }

// LastStats returns the Stats of the most recently completed Sweeping
// phase, for diagnostics.
func (s *StateMachine) LastStats() sweep.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// CollectFull runs one complete major cycle under pure STW,
// temporarily overriding cfg.Enabled even if incremental marking is
// configured on. This backs the "full" variant of spec §6's collect
// operation: a caller asking for a full collection wants the whole
// heap examined in one uninterrupted pass, not paced across slices.
func (s *StateMachine) CollectFull(ctx context.Context) error {
	s.mu.Lock()
	saved := s.cfg
	s.cfg.Enabled = false
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cfg = saved
		s.mu.Unlock()
	}()
	return s.Collect(ctx, true)
}

// Collect runs one full cycle to completion, regardless of
// cfg.Enabled: spec §5 says "explicit full collection blocks until
// complete." When incremental marking is enabled the cycle still
// takes bounded slices internally (so a concurrent allocation hook
// calling Tick mid-cycle interleaves correctly), but Collect itself
// does not return control to its caller until Sweeping finishes.
func (s *StateMachine) Collect(ctx context.Context, major bool) error {
	s.mu.Lock()
	if s.phase != PhaseIdle {
		s.mu.Unlock()
		// A cycle is already running (perhaps driven by Tick from
		// another goroutine's allocation hook); ride it to Idle
		// rather than starting a second, overlapping one.
		return s.waitForIdle(ctx)
	}
	s.mu.Unlock()

	s.startCycle(major)
	for {
		quiescent, err := s.tick(ctx)
		if err != nil {
			return err
		}
		if quiescent {
			return nil
		}
	}
}

// waitForIdle spins a Tick loop until the in-progress cycle someone
// else started reaches Idle. Used only when Collect is called
// re-entrantly while a cycle is already underway.
func (s *StateMachine) waitForIdle(ctx context.Context) error {
	for {
		s.mu.Lock()
		idle := s.phase == PhaseIdle
		s.mu.Unlock()
		if idle {
			return nil
		}
		if _, err := s.tick(ctx); err != nil {
			return err
		}
	}
}

// Tick runs one bounded slice of whatever phase is currently active,
// starting a new cycle first (major or minor, as major says) if the
// state machine is Idle. This
// is the incremental entry point: spec §5 lists "entry to allocation
// when an incremental slice is due" and "safepoint calls" as the
// suspension points that should drive it.
func (s *StateMachine) Tick(ctx context.Context, major bool) (quiescent bool, err error) {
	s.mu.Lock()
	idle := s.phase == PhaseIdle
	s.mu.Unlock()
	if idle {
		s.startCycle(major)
	}
	return s.tick(ctx)
}

// startCycle performs the Snapshot phase: a brief STW pause that
// stacks all roots and enables the SATB barrier, then transitions
// unconditionally to Marking (spec §4.7).
func (s *StateMachine) startCycle(major bool) {
	s.gate.Begin()
	defer s.gate.End()

	s.mu.Lock()
	s.major = major
	s.phase = PhaseSnapshot
	s.consecutiveExhausted = 0
	s.lastFallback = FallbackNone
	s.mu.Unlock()

	engine := s.coord.Engine
	if major {
		engine.SetFilter(nil)
	} else {
		engine.SetFilter(youngOnly)
	}

	scanRoots(engine, !major)
	barrier.SetSATBEnabled(true)

	s.mu.Lock()
	s.phase = PhaseMarking
	s.mu.Unlock()

	log.Printf("gc: snapshot complete, entering marking (major=%v, pending=%d)", major, engine.Pending())
}

func youngOnly(c *cell.Cell) bool { return c.Generation() == cell.Young }

// scanRoots feeds every exact root source into engine: shadow stacks,
// open handle scopes, and the process-wide explicit root set (spec
// §4.4). A minor collection additionally traces the remembered set's
// pages for old->young edges (spec §4.5) instead of the whole old
// generation.
func scanRoots(engine *mark.Engine, minor bool) {
	for _, ss := range roots.AllShadowStacks() {
		ss.Scan(engine.EnqueueRoot)
	}
	for _, hs := range roots.AllOpenScopes() {
		hs.ScanChain(engine.EnqueueRoot)
	}
	roots.ScanGlobal(engine.EnqueueRoot)

	if !minor {
		return
	}
	for _, p := range barrier.RememberedPages() {
		p.ForEachLiveSlot(func(_ int, c *cell.Cell) {
			if c.Type == nil || c.Type.Trace == nil {
				return
			}
			c.Type.Trace(c.Payload(), func(child unsafe.Pointer) {
				if child == nil {
					return
				}
				engine.Shade((*cell.Cell)(child))
			})
		})
	}
}

// tick runs one slice of the Marking phase (or, if already past it,
// drives FinalMark/Sweeping/Idle directly) and reports whether the
// cycle reached Idle.
func (s *StateMachine) tick(ctx context.Context) (quiescent bool, err error) {
	s.mu.Lock()
	phase := s.phase
	cfg := s.cfg
	major := s.major
	s.mu.Unlock()

	switch phase {
	case PhaseIdle:
		return true, nil
	case PhaseMarking:
		return s.tickMarking(ctx, cfg)
	case PhaseFinalMark:
		s.runFinalMark(ctx)
		return false, nil
	case PhaseSweeping:
		s.runSweeping(major)
		return true, nil
	default:
		return false, nil
	}
}

func (s *StateMachine) tickMarking(ctx context.Context, cfg Config) (quiescent bool, err error) {
	if !cfg.Enabled {
		// Pure STW: drain everything in one go under the gate, then
		// fall through the rest of the phases synchronously.
		s.gate.Begin()
		defer s.gate.End()
		if err := s.coord.RunToExhaustion(ctx); err != nil {
			return false, err
		}
		s.mu.Lock()
		s.phase = PhaseFinalMark
		s.mu.Unlock()
		s.runFinalMarkLocked(ctx)
		s.runSweeping(s.major)
		return true, nil
	}

	increment := cfg.IncrementSize
	if increment <= 0 {
		increment = DefaultConfig().IncrementSize
	}
	wasQuiescent, err := s.coord.RunSlice(ctx, increment, cfg.SliceTimeout)
	if err != nil {
		return false, err
	}

	reason := s.checkFallback(wasQuiescent, cfg)
	if reason != FallbackNone || wasQuiescent {
		if reason != FallbackNone {
			log.Printf("gc: incremental marking falling back to STW finish: %s", reason)
		}
		s.mu.Lock()
		s.phase = PhaseFinalMark
		s.lastFallback = reason
		s.mu.Unlock()
		s.runFinalMark(ctx)
	}

	return false, nil
}

// checkFallback implements spec §4.7's "fallback to STW finish if the
// slice budget is exceeded repeatedly or the remembered-page buffer
// overflows."
func (s *StateMachine) checkFallback(wasQuiescent bool, cfg Config) FallbackReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wasQuiescent {
		s.consecutiveExhausted = 0
		return FallbackNone
	}
	s.consecutiveExhausted++
	const maxConsecutiveSlices = 64
	if s.consecutiveExhausted >= maxConsecutiveSlices {
		return FallbackBudgetExhausted
	}
	if cfg.MaxDirtyPages > 0 && barrier.RememberedCount() > cfg.MaxDirtyPages {
		return FallbackDirtyPageOverflow
	}
	return FallbackNone
}

// runFinalMark takes the gate itself (used by the Tick path, where
// Marking ran without holding it).
func (s *StateMachine) runFinalMark(ctx context.Context) {
	s.gate.Begin()
	defer s.gate.End()
	s.runFinalMarkLocked(ctx)
}

// runFinalMarkLocked assumes the caller already holds the STW gate: it
// drains the SATB buffer and any remaining gray work, runs the
// ephemeron fix-point, and disables the barrier (spec §4.7).
func (s *StateMachine) runFinalMarkLocked(ctx context.Context) {
	engine := s.coord.Engine
	barrier.FlushAll()
	_ = s.coord.RunToExhaustion(ctx)
	engine.FixPoint()
	barrier.SetSATBEnabled(false)

	s.mu.Lock()
	s.phase = PhaseSweeping
	s.mu.Unlock()
	log.Printf("gc: final-mark complete, entering sweeping")
}

// runSweeping performs the Sweeping phase and returns to Idle,
// recording Stats for diagnostics and resetting the trigger policy's
// byte counters (spec §4.9) now that this cycle has accounted for
// everything they were tracking.
func (s *StateMachine) runSweeping(major bool) {
	st := sweep.Sweep(!major)

	s.mu.Lock()
	s.stats = st
	s.phase = PhaseIdle
	s.mu.Unlock()

	if s.pol != nil {
		if major {
			s.pol.NotifyMajorComplete()
		} else {
			s.pol.NotifyMinorComplete()
		}
	}

	log.Printf("gc: sweep complete: swept=%d survived=%d promoted=%d orphaned=%d",
		st.Swept, st.Survived, st.Promoted, st.Orphaned)
}
