// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package socksdial

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
)

// SOCKS4ProxyDialer dials a target address through an upstream SOCKS4 or
// SOCKS4a proxy. golang.org/x/net/proxy only implements SOCKS5, so this is a
// minimal hand-rolled client for the older wire format, structured the same
// way SOCKS5ProxyDialer is: a constructor that validates the scheme and a
// DialContext that does the handshake.
type SOCKS4ProxyDialer struct {
	dial ContextDialerFunc
	host string
	port string
	user string

	// RemoteDNS selects SOCKS4a semantics: the hostname is sent to the
	// proxy unresolved (scheme "socks4a") instead of resolved locally
	// first (scheme "socks4").
	RemoteDNS bool
}

// SOCKS4Proxy builds a dialer for proxy URLs with scheme "socks4" or
// "socks4a".
func SOCKS4Proxy(dial ContextDialerFunc, proxyURL *url.URL) *SOCKS4ProxyDialer {
	if dial == nil {
		panic("dial is required")
	}
	if proxyURL == nil {
		panic("proxy URL is required")
	}
	if proxyURL.Scheme != "socks4" && proxyURL.Scheme != "socks4a" {
		panic("proxy URL scheme must be socks4 or socks4a")
	}

	port := proxyURL.Port()
	if port == "" {
		port = "1080"
	}

	user := ""
	if proxyURL.User != nil {
		user = proxyURL.User.Username()
	}

	return &SOCKS4ProxyDialer{
		dial:      dial,
		host:      proxyURL.Hostname(),
		port:      port,
		user:      user,
		RemoteDNS: proxyURL.Scheme == "socks4a",
	}
}

const (
	socks4Version     = 0x04
	socks4CmdConnect  = 0x01
	socks4Granted     = 0x5a
	socks4Rejected    = 0x5b
	socks4NoIdentd    = 0x5c
	socks4IdentFailed = 0x5d
)

func (d *SOCKS4ProxyDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	var portNum uint64
	if _, err := fmt.Sscanf(portStr, "%d", &portNum); err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", portStr, err)
	}

	conn, err := d.dial(ctx, network, net.JoinHostPort(d.host, d.port))
	if err != nil {
		return nil, err
	}

	if err := d.handshake(conn, host, uint16(portNum)); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

func (d *SOCKS4ProxyDialer) handshake(conn net.Conn, host string, port uint16) error {
	ip := net.ParseIP(host)
	useHostname := false
	if ip == nil {
		if !d.RemoteDNS {
			return fmt.Errorf("socks4 requires an IPv4 address, got hostname %q (use socks4a for remote DNS)", host)
		}
		useHostname = true
		ip = net.IPv4(0, 0, 0, 1)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return fmt.Errorf("socks4 only supports IPv4 addresses, got %q", host)
	}

	req := make([]byte, 0, 32)
	req = append(req, socks4Version, socks4CmdConnect, byte(port>>8), byte(port))
	req = append(req, ip4...)
	req = append(req, []byte(d.user)...)
	req = append(req, 0)
	if useHostname {
		req = append(req, []byte(host)...)
		req = append(req, 0)
	}

	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("write SOCKS4 request: %w", err)
	}

	resp := make([]byte, 8)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return fmt.Errorf("read SOCKS4 response: %w", err)
	}

	if resp[0] != 0x00 {
		return fmt.Errorf("malformed SOCKS4 response, version byte %#x", resp[0])
	}

	switch resp[1] {
	case socks4Granted:
		return nil
	case socks4Rejected:
		return fmt.Errorf("SOCKS4 request rejected")
	case socks4NoIdentd:
		return fmt.Errorf("SOCKS4 request failed: identd unreachable")
	case socks4IdentFailed:
		return fmt.Errorf("SOCKS4 request failed: identd auth mismatch")
	default:
		return fmt.Errorf("SOCKS4 request failed, code %#x", resp[1])
	}
}
