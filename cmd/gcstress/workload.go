// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"math/rand"
	"unsafe"

	"github.com/rudogc/gc"
)

// node is a small managed tree node with an optional cross-link weak
// reference, enough shape to exercise tracing through a Ptr slice,
// generational promotion (nodes survive several minor cycles once a
// tree is built), and weak-upgrade races against sweep.
type node struct {
	label    int
	children []gc.Ptr[node]
	cross    gc.Weak[node]
}

func init() {
	gc.Register[node](func(n *node, visit func(p unsafe.Pointer)) {
		for _, c := range n.children {
			gc.Visit(visit, c)
		}
	}, nil)
}

// buildTree allocates a random tree of the given depth/fanout. The
// returned all slice holds one strong (shadow-stack-rooted) Ptr per
// node, root first; the tree's own children slices hold unrooted
// gc.Child references, reachable only by tracing down from whichever
// node is itself rooted. Releasing every entry in all therefore drops
// the tree's only roots without needing to touch children at all.
func buildTree(depth, fanout int, seed *rand.Rand) (root gc.Ptr[node], all []gc.Ptr[node], err error) {
	root, err = gc.New(node{label: 0})
	if err != nil {
		return gc.Ptr[node]{}, nil, err
	}
	all = append(all, root)
	if err := growTree(root, depth, fanout, seed, &all); err != nil {
		return gc.Ptr[node]{}, nil, err
	}
	return root, all, nil
}

func growTree(parent gc.Ptr[node], depth, fanout int, seed *rand.Rand, all *[]gc.Ptr[node]) error {
	if depth <= 0 {
		return nil
	}
	root := (*all)[0]
	children := make([]gc.Ptr[node], 0, fanout)
	for i := 0; i < fanout; i++ {
		child, err := gc.New(node{label: seed.Int()})
		if err != nil {
			return err
		}
		*all = append(*all, child)
		if seed.Intn(4) == 0 {
			child.Value().cross = root.Downgrade()
		}
		children = append(children, gc.Child(child))
		if err := growTree(child, depth-1, fanout, seed, all); err != nil {
			return err
		}
	}
	parent.Value().children = children
	return nil
}

// treeWorkload builds a tree, collects once while it's still
// reachable (every node must survive), drops every strong reference to
// it, collects again, and checks that every weak cross-link observes
// its target dead.
func treeWorkload(ctx context.Context, workerID int, iter int) error {
	seed := rand.New(rand.NewSource(int64(workerID)<<32 | int64(iter)))
	root, all, err := buildTree(4, 3, seed)
	if err != nil {
		return fmt.Errorf("build tree: %w", err)
	}

	kind := gc.Minor
	if iter%5 == 0 {
		kind = gc.Major
	}
	if err := gc.Collect(ctx, kind); err != nil {
		return fmt.Errorf("collect while live: %w", err)
	}
	for _, p := range all {
		if p.Dead() {
			return fmt.Errorf("node at %#x reclaimed while still reachable", p.Addr())
		}
	}

	var crosses []gc.Weak[node]
	for _, p := range all {
		if cross := p.Value().cross; cross != (gc.Weak[node]{}) && cross.IsAlive() {
			crosses = append(crosses, cross)
		}
	}

	for i := len(all) - 1; i >= 0; i-- {
		all[i].Release()
	}

	if err := gc.Collect(ctx, gc.Full); err != nil {
		return fmt.Errorf("full collect after drop: %w", err)
	}

	for _, w := range crosses {
		if _, ok := w.Upgrade(); ok {
			return fmt.Errorf("weak cross-link upgraded after its tree became unreachable")
		}
	}
	return nil
}

// ephemeronWorkload pairs a key and a value, drops the only other
// strong reference to each, collects, and checks the value becomes
// unreachable through the ephemeron once the key is gone.
func ephemeronWorkload(ctx context.Context, workerID int, iter int) error {
	key, err := gc.New(workerID*1000 + iter)
	if err != nil {
		return err
	}
	value, err := gc.New(fmt.Sprintf("value-%d-%d", workerID, iter))
	if err != nil {
		key.Release()
		return err
	}
	eph := gc.NewEphemeron[int, string](key, value)
	defer eph.Release()

	if v, ok := eph.Value(); !ok || v == nil {
		return fmt.Errorf("ephemeron value unreachable while key still live")
	}

	key.Release()
	value.Release()
	if err := gc.Collect(ctx, gc.Full); err != nil {
		return err
	}

	if _, ok := eph.Value(); ok {
		return fmt.Errorf("ephemeron value observed live after key became unreachable")
	}
	return nil
}
