// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// Reporter writes worker failure output and a running status line, the
// same split stress2's StressReporter interface draws between an
// io.Writer for log text and Status/StartStatus/StopStatus for an
// animated summary. Unlike stress2's dumb/VT100 pair, there is exactly
// one Reporter here; it decides once, at construction, whether stdout
// is a terminal and animates the status line with a carriage return
// if so, or leaves it to periodic plain lines if not.
type Reporter struct {
	mu  sync.Mutex
	w   io.Writer
	tty bool

	lastLen int
}

// NewReporter builds a Reporter writing to w, probing fd for
// terminal-ness to decide whether to animate.
func NewReporter(w io.Writer, fd uintptr) *Reporter {
	return &Reporter{w: w, tty: term.IsTerminal(int(fd))}
}

// NewStdoutReporter is the common case: report to os.Stdout, probing
// it for TTY-ness.
func NewStdoutReporter() *Reporter {
	return NewReporter(os.Stdout, os.Stdout.Fd())
}

func (r *Reporter) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tty && r.lastLen > 0 {
		fmt.Fprint(r.w, "\r", blank(r.lastLen), "\r")
		r.lastLen = 0
	}
	return r.w.Write(p)
}

// StartStatus is a no-op hook kept for symmetry with StopStatus; a
// Reporter has nothing to set up before its first Status call.
func (r *Reporter) StartStatus() {}

// StopStatus clears any in-progress animated status line.
func (r *Reporter) StopStatus() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tty && r.lastLen > 0 {
		fmt.Fprint(r.w, "\r", blank(r.lastLen), "\r")
		r.lastLen = 0
	}
}

// Status reports the current summary line. On a terminal it overwrites
// the previous line in place; otherwise it's printed as its own line,
// since there's no cursor to rewind.
func (r *Reporter) Status(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tty {
		fmt.Fprint(r.w, "\r", blank(r.lastLen), "\r", s)
		r.lastLen = len(s)
		return
	}
	fmt.Fprintln(r.w, s)
}

func blank(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}
