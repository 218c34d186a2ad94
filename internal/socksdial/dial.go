// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package socksdial dials a target address through an upstream proxy -
// HTTP/HTTPS CONNECT or SOCKS4/4a/5/5h - returning a plain net.Conn the
// caller tunnels bytes over exactly as if it had dialed the target
// directly.
package socksdial

import (
	"context"
	"net"
)

// ContextDialerFunc is a function that implements Dialer and ContextDialer.
type ContextDialerFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Dial satisfies golang.org/x/net/proxy.Dialer. It is never actually called
// since proxy.ContextDialer is preferred when available.
func (f ContextDialerFunc) Dial(network, addr string) (net.Conn, error) {
	return f(context.Background(), network, addr)
}

func (f ContextDialerFunc) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return f(ctx, network, addr)
}

type contextDialer interface {
	DialContext(context.Context, string, string) (net.Conn, error)
}
