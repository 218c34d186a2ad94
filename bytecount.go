// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxychain

import (
	"io"
	"sync/atomic"
)

// byteCounter accumulates bytes read and written across the lifetime of a
// Connection. A single Connection can have several target sockets attached
// to it over time (client keep-alive reusing the same proxy connection for
// multiple requests to possibly different targets), so unlike a one-shot
// per-dial observer, byteCounter tracks a running total independent of how
// many sockets were attached and detached.
type byteCounter struct {
	rx atomic.Uint64
	tx atomic.Uint64
}

func (c *byteCounter) Rx() uint64 { return c.rx.Load() }
func (c *byteCounter) Tx() uint64 { return c.tx.Load() }

func (c *byteCounter) addRx(n int) {
	if n > 0 {
		c.rx.Add(uint64(n)) //nolint:gosec // n is never negative.
	}
}

func (c *byteCounter) addTx(n int) {
	if n > 0 {
		c.tx.Add(uint64(n)) //nolint:gosec // n is never negative.
	}
}

// countReads returns a Reader that adds every byte it reads from r to the
// counter's rx total.
func (c *byteCounter) countReads(r io.Reader) io.Reader {
	return &countingReader{r: r, c: c}
}

// countWrites returns a Writer that adds every byte it writes to w to the
// counter's tx total.
func (c *byteCounter) countWrites(w io.Writer) io.Writer {
	return &countingWriter{w: w, c: c}
}

type countingReader struct {
	r io.Reader
	c *byteCounter
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.c.addRx(n)
	return n, err
}

type countingWriter struct {
	w io.Writer
	c *byteCounter
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.c.addTx(n)
	return n, err
}

// byteCountSnapshot is a point-in-time view of a byteCounter, used to report
// the incremental bytes transferred attached to a single target socket
// (e.g. for per-request logging) without losing the Connection-wide total.
type byteCountSnapshot struct {
	rx0, tx0 uint64
	c        *byteCounter
}

// snapshot captures the current totals so delta can later report the bytes
// moved since this call.
func (c *byteCounter) snapshot() byteCountSnapshot {
	return byteCountSnapshot{rx0: c.rx.Load(), tx0: c.tx.Load(), c: c}
}

// delta returns the bytes transferred since the snapshot was taken.
func (s byteCountSnapshot) delta() (rx, tx uint64) {
	return s.c.rx.Load() - s.rx0, s.c.tx.Load() - s.tx0
}
