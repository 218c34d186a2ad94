// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package run

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	proxychain "github.com/saucelabs/proxychain"
	"github.com/saucelabs/proxychain/bind"
	flog "github.com/saucelabs/proxychain/log"
	"github.com/saucelabs/proxychain/log/zerologadapter"
	"github.com/saucelabs/proxychain/metrics"
	"github.com/saucelabs/proxychain/runctx"
)

type command struct {
	address       string
	dialConfig    *proxychain.DialConfig
	dnsConfig     *proxychain.DNSConfig
	tlsConfig     *proxychain.TLSClientConfig
	basicAuth     *url.Userinfo
	upstreamProxy *url.URL
	apiAddress    string
	promNamespace string
	logConfig     *flog.Config
}

func newCommand() *command {
	return &command{
		address:    "localhost:3128",
		dialConfig: proxychain.DefaultDialConfig(),
		dnsConfig:  proxychain.DefaultDNSConfig(),
		tlsConfig:  proxychain.DefaultTLSClientConfig(),
		apiAddress: "localhost:10000",
		logConfig:  flog.DefaultConfig(),
	}
}

func (c *command) runE(cmd *cobra.Command, _ []string) error {
	if c.logConfig.Verbose {
		c.logConfig.Level = flog.DebugLevel
	}
	logger := zerologadapter.New(c.logConfig)

	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector(promReg, c.promNamespace)

	var requireAuth bool
	var authUser, authPass string
	if c.basicAuth != nil {
		requireAuth = true
		authUser = c.basicAuth.Username()
		authPass, _ = c.basicAuth.Password()
		logger.Infof("client basic auth required for %s", bind.RedactUserinfo(c.basicAuth))
	}
	if c.upstreamProxy != nil {
		logger.Infof("chaining through upstream proxy %s", bind.RedactURL(c.upstreamProxy))
	}

	prepare := func(in proxychain.PrepareRequestInput) (*proxychain.PrepareRequestResult, error) {
		if requireAuth && (in.Username != authUser || in.Password != authPass) {
			return &proxychain.PrepareRequestResult{RequestAuthentication: true}, nil
		}

		collector.ObserveRequest(in.Method)

		return &proxychain.PrepareRequestResult{
			UpstreamProxyURL: c.upstreamProxy,
		}, nil
	}

	srv, err := proxychain.NewServer(proxychain.ServerConfig{
		PrepareRequest:  prepare,
		DialConfig:      c.dialConfig,
		DNSConfig:       c.dnsConfig,
		TLSClientConfig: c.tlsConfig,
		EventHandlers:   collector.EventHandlers(proxychain.EventHandlers{}),
		Logger:          logger,
		AuthRealm:       "proxychain",
	})
	if err != nil {
		return fmt.Errorf("new server: %w", err)
	}

	addr, err := srv.Listen("tcp", c.address)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logger.Infof("listening on %s", addr)

	g := runctx.NewGroup(func(ctx context.Context) error {
		<-ctx.Done()
		return srv.Close()
	})

	if c.apiAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		apiSrv := &http.Server{Addr: c.apiAddress, Handler: mux}
		g.Add(func(ctx context.Context) error {
			ln, err := net.Listen("tcp", c.apiAddress)
			if err != nil {
				return fmt.Errorf("api listen: %w", err)
			}
			logger.Infof("api server listening on %s", ln.Addr())

			errc := make(chan error, 1)
			go func() { errc <- apiSrv.Serve(ln) }()

			select {
			case <-ctx.Done():
				return apiSrv.Close()
			case err := <-errc:
				return err
			}
		})
	}

	return g.Run()
}

func Command() *cobra.Command {
	c := newCommand()

	cmd := &cobra.Command{
		Use:   "run [flags]",
		Short: "Run the proxy server",
		RunE:  c.runE,
	}

	fs := cmd.Flags()
	bind.ListenAddress(fs, &c.address)
	bind.DialConfig(fs, c.dialConfig)
	bind.DNSConfig(fs, c.dnsConfig)
	bind.TLSClientConfig(fs, c.tlsConfig)
	bind.BasicAuth(fs, &c.basicAuth)
	bind.UpstreamProxy(fs, &c.upstreamProxy)
	bind.APIAddress(fs, &c.apiAddress)
	bind.PrometheusNamespace(fs, &c.promNamespace)
	bind.LogConfig(fs, c.logConfig)

	return cmd
}
