// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package socksdial

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
)

// Dialer dials a target address through an upstream proxy described by a
// URL whose scheme is one of http, https, socks4, socks4a, socks5, socks5h.
type Dialer struct {
	ContextDialerFunc
}

// New builds the ContextDialer for proxyURL, using dial to reach the
// upstream proxy itself.
func New(dial ContextDialerFunc, proxyURL *url.URL) (*Dialer, error) {
	switch proxyURL.Scheme {
	case "http":
		d := HTTPProxy(dial, proxyURL)
		return &Dialer{d.DialContext}, nil
	case "https":
		d := HTTPSProxy(dial, proxyURL, &tls.Config{})
		return &Dialer{d.DialContext}, nil
	case "socks4", "socks4a":
		d := SOCKS4Proxy(dial, proxyURL)
		return &Dialer{d.DialContext}, nil
	case "socks5", "socks5h":
		d := SOCKS5Proxy(dial, proxyURL)
		return &Dialer{d.DialContext}, nil
	default:
		return nil, fmt.Errorf("unsupported upstream proxy scheme %q", proxyURL.Scheme)
	}
}

var _ interface {
	DialContext(context.Context, string, string) (net.Conn, error)
} = (*Dialer)(nil)
