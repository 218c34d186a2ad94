// Copyright 2023 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxychain

import (
	"context"
	"net"
	"net/netip"
	"sync/atomic"
	"syscall"
	"time"
)

type DialConfig struct {
	// DialTimeout is the maximum amount of time a dial will wait for
	// connect to complete.
	//
	// With or without a timeout, the operating system may impose
	// its own earlier timeout. For instance, TCP timeouts are
	// often around 3 minutes.
	DialTimeout time.Duration

	// KeepAlive enables TCP keep-alive probes for an active network connection.
	// The keep-alive probes are sent with OS specific intervals.
	KeepAlive bool
}

func DefaultDialConfig() *DialConfig {
	return &DialConfig{
		DialTimeout: 10 * time.Second,
		KeepAlive:   true,
	}
}

type Dialer struct {
	nd net.Dialer
}

// NewDialer builds a Dialer honoring dial and, when dns names at least one
// server, resolving target hostnames against that server list instead of
// the host's configured resolver.
func NewDialer(dial *DialConfig, dns *DNSConfig) *Dialer {
	nd := net.Dialer{
		Timeout:   dial.DialTimeout,
		KeepAlive: -1,
		Resolver:  newResolver(dns),
	}

	if dial.KeepAlive {
		nd.Control = func(network, address string, c syscall.RawConn) error {
			return c.Control(enableTCPKeepAlive)
		}
	}

	return &Dialer{
		nd: nd,
	}
}

// newResolver builds a net.Resolver that dials cfg.Servers directly over UDP
// when any are configured, optionally round-robining across them, otherwise
// falling back to the Go DNS client against the host's own configuration.
func newResolver(cfg *DNSConfig) *net.Resolver {
	if cfg == nil || len(cfg.Servers) == 0 {
		return &net.Resolver{PreferGo: true}
	}

	servers := cfg.Servers
	timeout := cfg.Timeout
	var next atomic.Uint32

	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var server netip.AddrPort
			if cfg.RoundRobin {
				server = servers[next.Add(1)%uint32(len(servers))]
			} else {
				server = servers[0]
			}

			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			var d net.Dialer
			return d.DialContext(ctx, network, server.String())
		},
	}
}

func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.nd.DialContext(ctx, network, address)
}
