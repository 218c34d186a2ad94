// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bind

import (
	"net/url"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	proxychain "github.com/saucelabs/proxychain"
	flog "github.com/saucelabs/proxychain/log"
)

func TestDialConfigBindsFlags(t *testing.T) {
	cfg := proxychain.DefaultDialConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	DialConfig(fs, cfg)

	require.NoError(t, fs.Parse([]string{"--dial-timeout=30s", "--dial-keep-alive=false"}))
	require.Equal(t, 30*time.Second, cfg.DialTimeout)
	require.False(t, cfg.KeepAlive)
}

func TestDNSConfigBindsServerList(t *testing.T) {
	cfg := proxychain.DefaultDNSConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	DNSConfig(fs, cfg)

	require.NoError(t, fs.Parse([]string{"--dns-server=1.1.1.1", "--dns-server=8.8.8.8:53", "--dns-round-robin"}))
	require.Len(t, cfg.Servers, 2)
	require.True(t, cfg.RoundRobin)
}

func TestUpstreamProxyParsesURL(t *testing.T) {
	var upstream *url.URL
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	UpstreamProxy(fs, &upstream)

	require.NoError(t, fs.Parse([]string{"--upstream-proxy=socks5://example.com:1080"}))
	require.NotNil(t, upstream)
	require.Equal(t, "socks5", upstream.Scheme)
	require.Equal(t, "example.com:1080", upstream.Host)
}

func TestBasicAuthParsesCredentials(t *testing.T) {
	var ui *url.Userinfo
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BasicAuth(fs, &ui)

	require.NoError(t, fs.Parse([]string{"--basic-auth=alice:wonderland"}))
	require.NotNil(t, ui)
	require.Equal(t, "alice", ui.Username())
	pass, ok := ui.Password()
	require.True(t, ok)
	require.Equal(t, "wonderland", pass)
}

func TestLogConfigBindsVerboseAndFormat(t *testing.T) {
	cfg := flog.DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	LogConfig(fs, cfg)

	require.NoError(t, fs.Parse([]string{"--verbose", "--log-format=json"}))
	require.True(t, cfg.Verbose)
	require.Equal(t, flog.JSONFormat, cfg.Mode)
}
