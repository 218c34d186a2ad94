// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxychain

import (
	"net"
	"net/url"
	"sync"
)

// DispatchMode names which of the seven ways a request was handled.
type DispatchMode string

const (
	DispatchForward        DispatchMode = "forward"
	DispatchForwardSocks   DispatchMode = "forwardSocks"
	DispatchDirect         DispatchMode = "direct"
	DispatchChain          DispatchMode = "chain"
	DispatchChainSocks     DispatchMode = "chainSocks"
	DispatchCustomResponse DispatchMode = "customResponse"
	DispatchCustomConnect  DispatchMode = "customConnect"
)

// CustomResponse is what a PrepareRequestFunc returns to answer a
// non-CONNECT request synthetically instead of forwarding it anywhere.
type CustomResponse struct {
	StatusCode int
	Header     map[string][]string
	Body       []byte
}

// CustomConnectHandler receives the already-upgraded client socket after the
// proxy writes the "200 Connection Established" line, for CONNECT requests
// the prepare hook wants to terminate locally instead of tunneling anywhere.
type CustomConnectHandler func(conn net.Conn, customTag any)

// HandlerOptions is the per-request record built from the parsed request and
// populated by PrepareRequestResult; it is what a dispatch handler actually
// consumes.
type HandlerOptions struct {
	TargetHost string
	TargetPort string
	IsHTTP     bool

	UpstreamProxyURL               *url.URL
	IgnoreUpstreamProxyCertificate bool

	CustomResponseFunc   func() (*CustomResponse, error)
	CustomConnectHandler CustomConnectHandler

	LocalAddress string
	CustomTag    any
}

// PrepareRequestInput is passed to a PrepareRequestFunc once per request,
// after the request line and any Proxy-Authorization header have been
// parsed.
type PrepareRequestInput struct {
	ConnectionID int64
	Method       string
	URL          *url.URL
	Header       map[string][]string
	Username     string
	Password     string
	Hostname     string
	Port         string
	IsHTTP       bool
}

// PrepareRequestResult is what a PrepareRequestFunc returns. The zero value
// means: allow, dial the target directly, no interception.
type PrepareRequestResult struct {
	RequestAuthentication bool
	FailMsg               string

	UpstreamProxyURL               *url.URL
	IgnoreUpstreamProxyCertificate bool

	CustomResponseFunc   func() (*CustomResponse, error)
	CustomConnectHandler CustomConnectHandler

	LocalAddress string
	CustomTag    any
}

// PrepareRequestFunc decides authentication, routing, and interception for
// a single request. Returning a *RequestError causes that status/body to be
// written back to the client verbatim.
type PrepareRequestFunc func(in PrepareRequestInput) (*PrepareRequestResult, error)

// ConnectionStats is a point-in-time byte-accounting snapshot for one
// Connection. TrgTxBytes/TrgRxBytes are nil once no target socket has ever
// been attached, matching the "never attached" vs "attached and gone"
// distinction in the data model.
type ConnectionStats struct {
	SrcTxBytes uint64
	SrcRxBytes uint64
	TrgTxBytes *uint64
	TrgRxBytes *uint64
}

// targetAttachment tracks one socket dialed on behalf of a Connection. A
// Connection can cycle through several of these over its lifetime when the
// client reuses a keep-alive connection to issue requests to different
// targets.
type targetAttachment struct {
	conn net.Conn
	acc  *byteCounter
}

// Connection is the server's per-accepted-socket bookkeeping record: one is
// created at accept and destroyed when both the client socket and every
// attached target socket are closed. It is the Go equivalent of the
// symbol-keyed private state the original implementation attaches to each
// socket object (see DESIGN.md's connection.go entry: a wrapper struct makes
// ownership explicit, which is what this type is for).
type Connection struct {
	ID     int64
	Client net.Conn

	mu         sync.Mutex
	src        byteCounter
	targetSum  byteCounter // cumulative totals of detached targets
	targets    map[*targetAttachment]byteCountSnapshot
	everTarget bool

	closed bool
}

func newConnection(id int64, client net.Conn) *Connection {
	return &Connection{
		ID:      id,
		Client:  client,
		targets: make(map[*targetAttachment]byteCountSnapshot),
	}
}

// attachTarget registers conn as a live target socket of this Connection,
// wrapping its reads/writes so bytes get counted, and snapshotting its
// current totals so only the delta moved on this attachment is attributed
// here (the target socket may be reused by a pool and already carry bytes
// from an unrelated attachment).
func (c *Connection) attachTarget(conn net.Conn) (net.Conn, *targetAttachment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	acc := &byteCounter{}
	ta := &targetAttachment{conn: conn, acc: acc}
	c.targets[ta] = acc.snapshot()
	c.everTarget = true

	wrapped := &countingConn{Conn: conn, acc: acc}
	return wrapped, ta
}

// detachTarget flushes ta's delta into the cumulative totals and forgets it.
func (c *Connection) detachTarget(ta *targetAttachment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.targets[ta]
	if !ok {
		return
	}
	rx, tx := snap.delta()
	c.targetSum.addRx(int(rx)) //nolint:gosec // bounded by observed traffic.
	c.targetSum.addTx(int(tx)) //nolint:gosec // bounded by observed traffic.
	delete(c.targets, ta)
}

// Stats returns the current byte-accounting snapshot: cumulative totals of
// detached targets plus the live delta of every still-attached target.
func (c *Connection) Stats() ConnectionStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := ConnectionStats{
		SrcTxBytes: c.src.Tx(),
		SrcRxBytes: c.src.Rx(),
	}

	if !c.everTarget {
		return stats
	}

	rxTotal, txTotal := c.targetSum.Rx(), c.targetSum.Tx()
	for _, snap := range c.targets {
		rx, tx := snap.delta()
		rxTotal += rx
		txTotal += tx
	}
	stats.TrgRxBytes = &rxTotal
	stats.TrgTxBytes = &txTotal
	return stats
}

// countingConn wraps a net.Conn, feeding every byte read/written through acc.
type countingConn struct {
	net.Conn
	acc *byteCounter
}

func (c *countingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.acc.addRx(n)
	return n, err
}

func (c *countingConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	c.acc.addTx(n)
	return n, err
}

func (c *countingConn) CloseWrite() error {
	if cw, ok := asCloseWriter(c.Conn); ok {
		return cw.CloseWrite()
	}
	return c.Conn.Close()
}
