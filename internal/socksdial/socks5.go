// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package socksdial

import (
	"context"
	"net"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// SOCKS5ProxyDialer dials a target address through an upstream SOCKS5 proxy.
// golang.org/x/net/proxy sends a target hostname to the upstream proxy
// unresolved; unless RemoteDNS is set, DialContext resolves the hostname
// locally first and sends the IP instead. That is the distinction between
// the "socks5" and "socks5h" URL schemes.
type SOCKS5ProxyDialer struct {
	dial     ContextDialerFunc
	proxyURL *url.URL

	// RemoteDNS selects socks5h semantics: the hostname is sent to the
	// proxy unresolved instead of being resolved locally first.
	RemoteDNS bool

	Timeout time.Duration
}

// SOCKS5Proxy builds a dialer for proxy URLs with scheme "socks5" or
// "socks5h".
func SOCKS5Proxy(dial ContextDialerFunc, proxyURL *url.URL) *SOCKS5ProxyDialer {
	if dial == nil {
		panic("dial is required")
	}
	if proxyURL == nil {
		panic("proxy URL is required")
	}
	if proxyURL.Scheme != "socks5" && proxyURL.Scheme != "socks5h" {
		panic("proxy URL scheme must be socks5 or socks5h")
	}

	return &SOCKS5ProxyDialer{
		dial:      dial,
		proxyURL:  proxyURL,
		RemoteDNS: proxyURL.Scheme == "socks5h",
	}
}

func (d *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	u := d.proxyURL.User
	var auth *proxy.Auth
	if u != nil {
		auth = new(proxy.Auth)
		auth.User = u.Username()
		if p, ok := u.Password(); ok {
			auth.Password = p
		}
	}

	proxyHost := d.proxyURL.Hostname()
	proxyPort := d.proxyURL.Port()
	if proxyPort == "" {
		proxyPort = "1080"
	}
	proxyAddr := net.JoinHostPort(proxyHost, proxyPort)

	// golang.org/x/net/proxy.SOCKS5 always asks the upstream to resolve
	// the domain name itself when given a hostname (socks5h behavior). To
	// get plain socks5 (local resolution) we resolve addr ourselves first.
	dialAddr := addr
	if !d.RemoteDNS {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		if net.ParseIP(host) == nil {
			ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			if len(ips) == 0 {
				return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
			}
			dialAddr = net.JoinHostPort(ips[0].String(), port)
		}
	}

	sd, err := proxy.SOCKS5("tcp", proxyAddr, auth, d.dial)
	if err != nil {
		return nil, err
	}

	sdctx := sd.(contextDialer) //nolint:forcetypeassert // golang.org/x/net/proxy.SOCKS5 always returns a contextDialer.
	return sdctx.DialContext(ctx, network, dialAddr)
}
