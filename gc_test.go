// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"context"
	"testing"
)

type pair struct {
	a, b int
}

func TestNewValueReleaseRoundTrip(t *testing.T) {
	p, err := New(pair{a: 1, b: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Value().a != 1 || p.Value().b != 2 {
		t.Fatalf("Value returned %+v, want {1 2}", *p.Value())
	}
	if p.Dead() {
		t.Fatalf("a freshly allocated value must not be dead")
	}
	if p.StrongCount() != 1 {
		t.Fatalf("fresh Ptr should have strong count 1, got %d", p.StrongCount())
	}
	p.Release()
}

func TestCloneIndependentRelease(t *testing.T) {
	p, err := New(42)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := p.Clone()
	if !p.Equal(c) {
		t.Fatalf("Clone must reference the same cell as the original")
	}
	if p.StrongCount() != 2 {
		t.Fatalf("expected strong count 2 after Clone, got %d", p.StrongCount())
	}
	c.Release()
	if p.StrongCount() != 1 {
		t.Fatalf("releasing the clone must not affect the original's liveness")
	}
	p.Release()
}

func TestReleaseTwicePanics(t *testing.T) {
	p, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.Release()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic on double Release")
		}
	}()
	p.Release()
}

func TestChildDoesNotRootAndPanicsOnRelease(t *testing.T) {
	p, err := New(7)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Release()

	c := Child(p)
	if !p.Equal(c) {
		t.Fatalf("Child must alias the same cell")
	}
	if p.StrongCount() != 1 {
		t.Fatalf("Child must not bump the strong count, got %d", p.StrongCount())
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Release on a Child-derived Ptr to panic")
		}
	}()
	c.Release()
}

func TestWeakUpgradeWhileLive(t *testing.T) {
	p, err := New(99)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Release()

	w := p.Downgrade()
	defer w.Release()

	if !w.IsAlive() {
		t.Fatalf("weak reference to a live cell must report alive")
	}
	up, ok := w.Upgrade()
	if !ok {
		t.Fatalf("Upgrade of a live weak reference must succeed")
	}
	defer up.Release()
	if *up.Value() != 99 {
		t.Fatalf("upgraded value mismatch: got %d, want 99", *up.Value())
	}
}

func TestEphemeronValueTracksKeyLiveness(t *testing.T) {
	key, err := New(1)
	if err != nil {
		t.Fatalf("New key: %v", err)
	}
	value, err := New("payload")
	if err != nil {
		t.Fatalf("New value: %v", err)
	}

	eph := NewEphemeron[int, string](key, value)
	defer eph.Release()

	v, ok := eph.Value()
	if !ok || v == nil || *v != "payload" {
		t.Fatalf("ephemeron value must be visible while the key is live")
	}

	key.Release()
	value.Release()
}

func TestHandleScopePinOutlivesOriginalRelease(t *testing.T) {
	p, err := New(5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	scope := OpenScope()
	slot := Pin(scope, p)
	p.Release()

	pinned := slot.Get()
	if *pinned.Value() != 5 {
		t.Fatalf("pinned value mismatch: got %d, want 5", *pinned.Value())
	}
	pinned.Release()
	scope.Close()
}

func TestCollectAutoNoopWithoutCondition(t *testing.T) {
	if err := Collect(context.Background(), Auto); err != nil {
		t.Fatalf("Collect(Auto) with no installed condition should be a no-op, got: %v", err)
	}
}
