// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import "sync"

// orphanSet holds pages (small and large-head) whose owning thread
// has exited. Per spec §4.1, these pages "retain their headers and
// are reachable to the global sweeper" — they aren't reclaimed just
// because their thread is gone; a large object only leaves the
// process-wide map once both its counts hit zero (invariant 4), and a
// small orphan page's slots are only reclaimed by a normal sweep pass.
type orphanSet struct {
	mu    sync.Mutex
	small []*Page
	large []*Page
}

var globalOrphans = &orphanSet{}

func (o *orphanSet) adopt(small, large []*Page) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, p := range small {
		p.OwnerThread = 0
		o.small = append(o.small, p)
	}
	for _, p := range large {
		p.OwnerThread = 0
		o.large = append(o.large, p)
	}
}

// Pages returns a snapshot of all orphaned pages for the sweeper to
// walk. The sweeper removes fully-dead, no-weak-holder entries itself
// via Remove.
func (o *orphanSet) Pages() (small, large []*Page) {
	o.mu.Lock()
	defer o.mu.Unlock()
	small = append([]*Page(nil), o.small...)
	large = append([]*Page(nil), o.large...)
	return
}

func (o *orphanSet) RemoveSmall(p *Page) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, q := range o.small {
		if q == p {
			o.small = append(o.small[:i], o.small[i+1:]...)
			return
		}
	}
}

func (o *orphanSet) RemoveLarge(p *Page) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, q := range o.large {
		if q == p {
			o.large = append(o.large[:i], o.large[i+1:]...)
			return
		}
	}
}

// OrphanPages is the exported accessor sweep.go uses.
func OrphanPages() (small, large []*Page) { return globalOrphans.Pages() }

func RemoveOrphanSmall(p *Page) { globalOrphans.RemoveSmall(p) }
func RemoveOrphanLarge(p *Page) { globalOrphans.RemoveLarge(p) }
