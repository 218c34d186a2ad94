// Copyright 2022 The forwarder Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

package bind

import (
	"net/netip"
	"net/url"

	"github.com/mmatczuk/anyflag"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	proxychain "github.com/saucelabs/proxychain"
	flog "github.com/saucelabs/proxychain/log"
)

// DialConfig binds the flags controlling how the proxy dials target hosts
// and upstream proxies.
func DialConfig(fs *pflag.FlagSet, cfg *proxychain.DialConfig) {
	fs.DurationVar(&cfg.DialTimeout,
		"dial-timeout", cfg.DialTimeout, "timeout for dialing target hosts and upstream proxies")
	fs.BoolVar(&cfg.KeepAlive,
		"dial-keep-alive", cfg.KeepAlive, "enable TCP keep-alive on outgoing connections")
}

// DNSConfig binds the flags controlling DNS resolution of target hosts.
func DNSConfig(fs *pflag.FlagSet, cfg *proxychain.DNSConfig) {
	fs.VarP(anyflag.NewSliceValue[netip.AddrPort](nil, &cfg.Servers, proxychain.ParseDNSAddress),
		"dns-server", "n", "DNS server IP or IP:port, ex. 1.1.1.1 or 1.1.1.1:53 (can be specified multiple times)")
	fs.DurationVar(&cfg.Timeout,
		"dns-timeout", cfg.Timeout, "timeout for DNS queries if DNS server is specified")
	fs.BoolVar(&cfg.RoundRobin,
		"dns-round-robin", cfg.RoundRobin, "round robin across configured DNS servers instead of always using the first")
}

// TLSClientConfig binds the flags controlling TLS verification of upstream
// proxies and target hosts dialed with TLS.
func TLSClientConfig(fs *pflag.FlagSet, cfg *proxychain.TLSClientConfig) {
	fs.BoolVar(&cfg.InsecureSkipVerify,
		"insecure-skip-verify", cfg.InsecureSkipVerify, "skip TLS verification of the upstream proxy's certificate")
	fs.StringSliceVar(&cfg.CACertFiles,
		"cacert-file", cfg.CACertFiles, "add the named file to the set of trusted CA certificates (can be specified multiple times)")
	fs.DurationVar(&cfg.HandshakeTimeout,
		"tls-handshake-timeout", cfg.HandshakeTimeout, "TLS handshake timeout")
}

// ListenAddress binds the flag for the proxy's own listen address.
func ListenAddress(fs *pflag.FlagSet, addr *string) {
	fs.StringVarP(addr, "address", "l", *addr, "proxy listen address in the form of `host:port`")
}

// BasicAuth binds the flag requiring clients to authenticate to the proxy
// itself with HTTP Basic auth.
func BasicAuth(fs *pflag.FlagSet, ui **url.Userinfo) {
	fs.VarP(anyflag.NewValue[*url.Userinfo](*ui, ui, proxychain.ParseUserinfo),
		"basic-auth", "", "require clients to authenticate with `username:password`")
}

// UpstreamProxy binds the flag configuring a single upstream proxy every
// request is chained through (forward/forwardSocks/chain/chainSocks modes).
func UpstreamProxy(fs *pflag.FlagSet, upstream **url.URL) {
	fs.VarP(anyflag.NewValue[*url.URL](*upstream, upstream, proxychain.ParseProxyURL),
		"upstream-proxy", "u", "upstream proxy URL, scheme one of http, https, socks4, socks4a, socks5, socks5h")
}

// APIAddress binds the flag for the metrics/health API server's listen
// address.
func APIAddress(fs *pflag.FlagSet, addr *string) {
	fs.StringVar(addr, "api-address", *addr, "listen address for the metrics and health API server, empty disables it")
}

// PrometheusNamespace binds the flag for the Prometheus metric name prefix.
func PrometheusNamespace(fs *pflag.FlagSet, namespace *string) {
	fs.VarP(anyflag.NewValue[string](*namespace, namespace, proxychain.ParsePrometheusNamespace),
		"prom-namespace", "", "namespace prefix for exported Prometheus metrics")
}

// LogConfig binds the flags controlling where and how verbosely the
// process logs.
func LogConfig(fs *pflag.FlagSet, cfg *flog.Config) {
	fs.VarP(NewFileFlag(&cfg.File,
		proxychain.OpenFileParser(flog.DefaultFileFlags, flog.DefaultFileMode, 0o700)),
		"log-file", "", "log file path (default: stdout)")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "enable verbose (debug) logging")
	fs.Var(anyflag.NewValue[flog.Format](cfg.Mode, &cfg.Mode,
		anyflag.EnumParser[flog.Format](flog.TextFormat, flog.JSONFormat)),
		"log-format", "log output format, one of text, json")
}

// ConfigFile binds the flag naming a config file that BindAll reads flag
// defaults from (JSON, YAML, TOML, HCL, Java properties, per viper).
func ConfigFile(fs *pflag.FlagSet, path *string) {
	fs.StringVar(path, "config-file", *path, "configuration file to read flag values from")
}

func MarkFlagHidden(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		if err := cmd.Flags().MarkHidden(name); err != nil {
			panic(err)
		}
	}
}

func MarkFlagRequired(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
}

func MarkFlagFilename(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		if err := cmd.MarkFlagFilename(name); err != nil {
			panic(err)
		}
	}
}
