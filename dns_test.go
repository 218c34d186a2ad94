// Copyright 2022 The forwarder Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

package proxychain

import (
	"net/netip"
	"testing"
	"time"
)

func TestDefaultDNSConfig(t *testing.T) {
	c := DefaultDNSConfig()
	if c.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", c.Timeout)
	}
	if len(c.Servers) != 0 {
		t.Errorf("Servers = %v, want empty", c.Servers)
	}
	if c.RoundRobin {
		t.Errorf("RoundRobin = true, want false")
	}
}

func TestNewResolverNoServersUsesSystemResolver(t *testing.T) {
	r := newResolver(DefaultDNSConfig())
	if !r.PreferGo {
		t.Errorf("PreferGo = false, want true")
	}
	if r.Dial != nil {
		t.Errorf("Dial = non-nil, want nil when no servers are configured")
	}
}

func TestNewResolverWithServersSetsDial(t *testing.T) {
	cfg := &DNSConfig{
		Servers: []netip.AddrPort{
			netip.MustParseAddrPort("1.1.1.1:53"),
			netip.MustParseAddrPort("8.8.8.8:53"),
		},
		RoundRobin: true,
		Timeout:    2 * time.Second,
	}
	r := newResolver(cfg)
	if r.Dial == nil {
		t.Fatalf("Dial = nil, want non-nil when servers are configured")
	}
}
