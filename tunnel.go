// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// Copyright 2015 Google Inc. All rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxychain

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"reflect"
	"sync"

	"github.com/saucelabs/proxychain/utils/reflectx"
)

// closeWriter is implemented by connection types that support a TCP-style
// half-close, letting one direction of a tunnel finish while the other is
// still copying.
type closeWriter interface {
	CloseWrite() error
}

var (
	_ closeWriter = (*net.TCPConn)(nil)
	_ closeWriter = (*tls.Conn)(nil)
)

// asCloseWriter returns a closeWriter for w if it implements closeWriter.
// If w is a pointer to a struct, it checks if any of the fields implement closeWriter.
func asCloseWriter(w io.Writer) (closeWriter, bool) {
	if cw, ok := w.(closeWriter); ok {
		return cw, ok
	}
	return reflectx.LookupImpl[closeWriter](reflect.ValueOf(w))
}

var tunnelBufPool = sync.Pool{ //nolint:gochecknoglobals
	New: func() any {
		b := make([]byte, 32*1024)
		return &b
	},
}

// tunnelLeg copies from src to dst, counting bytes through acc, and
// half-closes dst once src is drained.
type tunnelLeg struct {
	name string
	dst  io.Writer
	src  io.Reader
	acc  *byteCounter
}

// bicopyTunnel pipes two legs concurrently and returns once both have
// finished. It is the bidirectional core of the direct/chain/chainSocks
// CONNECT dispatch modes: client<->target byte shoveling with independent
// half-close in each direction, grounded on the Martian proxy's tunnel
// copier.
func bicopyTunnel(legs ...tunnelLeg) {
	donec := make(chan struct{}, len(legs))
	for i := range legs {
		go legs[i].copy(donec)
	}
	for range legs {
		<-donec
	}
}

func (l tunnelLeg) copy(donec chan<- struct{}) {
	defer func() { donec <- struct{}{} }()

	bufp := tunnelBufPool.Get().(*[]byte) //nolint:forcetypeassert
	defer tunnelBufPool.Put(bufp)
	buf := *bufp

	var r io.Reader = l.src
	if l.acc != nil {
		r = l.acc.countReads(l.src)
	}
	w := io.Writer(l.dst)
	if l.acc != nil {
		w = l.acc.countWrites(l.dst)
	}

	_, err := io.CopyBuffer(w, r, buf)
	if err != nil && !isClosedConnError(err) {
		// Best effort: callers observe failures through connection
		// close reasons, not through this copy's return value.
		_ = err
	}

	if cw, ok := asCloseWriter(l.dst); ok {
		_ = cw.CloseWrite()
	} else if pw, ok := l.dst.(*io.PipeWriter); ok {
		_ = pw.Close()
	}
}

func isClosedConnError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	return errors.Is(err, io.EOF)
}

// drainBuffered writes buffered, the bytes already read past the request
// line, onto w before the raw byte-shoveling begins.
func drainBuffered(w io.Writer, buffered []byte) error {
	if len(buffered) == 0 {
		return nil
	}
	_, err := w.Write(buffered)
	if err != nil {
		return fmt.Errorf("drain buffered bytes: %w", err)
	}
	return nil
}
