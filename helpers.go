// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxychain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"

	"github.com/saucelabs/proxychain/internal/socksdial"
)

// anonymizedServers tracks every Server started by AnonymizeProxy (or
// ListenConnectAnonymizedProxy), keyed by the local URL callers were handed
// back, so CloseAnonymizedProxy can find it again by that URL alone.
var anonymizedServers sync.Map //nolint:gochecknoglobals // process-wide registry, mirrors the helper's own identity-map contract.

// AnonymizeProxyOptions configures AnonymizeProxy.
type AnonymizeProxyOptions struct {
	// UpstreamProxyURL is the credentialed proxy every request is chained
	// through. Its scheme decides chain vs chainSocks.
	UpstreamProxyURL string

	// IgnoreUpstreamProxyCertificate skips verifying the upstream's TLS
	// certificate, for an https-scheme upstream.
	IgnoreUpstreamProxyCertificate bool

	// ConnectOnly, when set, rejects plain HTTP requests and only allows
	// CONNECT, mirroring ListenConnectAnonymizedProxy's behavior.
	ConnectOnly bool

	Logger Logger
}

// AnonymizeProxy starts a local plain proxy server that forwards every
// request to the given upstream proxy, attaching its credentials itself.
// Callers get back a bare "http://host:port" URL with no credentials of its
// own: a process that only knows the returned URL can use the upstream
// proxy without ever learning its username or password.
func AnonymizeProxy(opts AnonymizeProxyOptions) (string, error) {
	upstreamURL, err := url.Parse(opts.UpstreamProxyURL)
	if err != nil {
		return "", fmt.Errorf("parse upstream proxy URL: %w", err)
	}
	if err := validateProxyURL(upstreamURL); err != nil {
		return "", fmt.Errorf("upstream proxy URL: %w", err)
	}

	prepare := func(in PrepareRequestInput) (*PrepareRequestResult, error) {
		if opts.ConnectOnly && in.IsHTTP {
			return nil, NewRequestError(StatusGenericError, errors.New("this anonymized proxy only allows CONNECT"))
		}
		return &PrepareRequestResult{
			UpstreamProxyURL:               upstreamURL,
			IgnoreUpstreamProxyCertificate: opts.IgnoreUpstreamProxyCertificate,
		}, nil
	}

	srv, err := NewServer(ServerConfig{
		PrepareRequest: prepare,
		Logger:         opts.Logger,
	})
	if err != nil {
		return "", err
	}

	addr, err := srv.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}

	localURL := "http://" + addr.String()
	anonymizedServers.Store(localURL, srv)
	return localURL, nil
}

// ListenConnectAnonymizedProxy is AnonymizeProxy restricted to CONNECT
// requests only, for callers that only ever need to tunnel TLS traffic
// through the upstream and want plain HTTP rejected outright.
func ListenConnectAnonymizedProxy(opts AnonymizeProxyOptions) (string, error) {
	opts.ConnectOnly = true
	return AnonymizeProxy(opts)
}

// CloseAnonymizedProxy stops the local server AnonymizeProxy started for
// anonymizedProxyURL. It reports false, nil if no such server is tracked
// (already closed, or never one of ours).
func CloseAnonymizedProxy(anonymizedProxyURL string, closeConnections bool) (bool, error) {
	v, ok := anonymizedServers.LoadAndDelete(anonymizedProxyURL)
	if !ok {
		return false, nil
	}
	srv := v.(*Server) //nolint:forcetypeassert // only *Server values are ever stored here.

	if closeConnections {
		return true, srv.Close()
	}

	// Stop accepting new connections but let in-flight ones finish on
	// their own; Close on exactly the listener accomplishes this since
	// the accept loop is the only thing selecting on it.
	return true, srv.stopAccepting()
}

// stopAccepting closes the listener without forcing every live Connection
// closed, the "let existing tunnels drain" half of CloseAnonymizedProxy.
func (s *Server) stopAccepting() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

// tunnels tracks every local listener CreateTunnel started, keyed by the
// local address callers were handed back.
var tunnels sync.Map //nolint:gochecknoglobals // process-wide registry, mirrors CreateTunnel/CloseTunnel's identity-map contract.

type tunnelListener struct {
	ln     net.Listener
	wg     sync.WaitGroup
	logger Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// CreateTunnel starts a local listener that, for every connection accepted,
// dials targetHost through proxyURL (attaching any credentials in
// proxyURL's userinfo) and shovels bytes both ways - a raw TCP tunnel with
// no HTTP framing of its own, for protocols other than HTTP/HTTPS that still
// need to go through an HTTP/SOCKS proxy. logger may be nil.
func CreateTunnel(proxyURL, targetHost string, logger Logger) (string, error) {
	pu, err := url.Parse(proxyURL)
	if err != nil {
		return "", fmt.Errorf("parse proxy URL: %w", err)
	}
	if err := validateProxyURL(pu); err != nil {
		return "", fmt.Errorf("proxy URL: %w", err)
	}

	if _, _, err := net.SplitHostPort(targetHost); err != nil {
		return "", fmt.Errorf("invalid target host %q: %w", targetHost, err)
	}

	if logger == nil {
		logger = NopLogger
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}

	dialer := NewDialer(DefaultDialConfig(), DefaultDNSConfig())
	tl := &tunnelListener{ln: ln, conns: make(map[net.Conn]struct{}), logger: logger}

	tl.wg.Add(1)
	go func() {
		defer tl.wg.Done()
		tl.serve(dialer, pu, targetHost)
	}()

	addr := "127.0.0.1:" + portOf(ln.Addr())
	tunnels.Store(addr, tl)
	return addr, nil
}

func (tl *tunnelListener) serve(dialer *Dialer, proxyURL *url.URL, targetHost string) {
	for {
		conn, err := tl.ln.Accept()
		if err != nil {
			return
		}

		// CreateTunnel's connections never go through Server, so they have
		// no integer Connection ID of their own; fall back to an opaque one
		// for log correlation.
		id := connectionIDFallback()

		tl.mu.Lock()
		tl.conns[conn] = struct{}{}
		tl.mu.Unlock()
		tl.wg.Add(1)

		go func() {
			defer func() {
				conn.Close()
				tl.mu.Lock()
				delete(tl.conns, conn)
				tl.mu.Unlock()
				tl.wg.Done()
			}()

			d, derr := socksdial.New(socksdial.ContextDialerFunc(dialer.DialContext), proxyURL)
			if derr != nil {
				tl.logger.Errorf("tunnel %s: dial upstream proxy: %v", id, derr)
				return
			}
			tconn, err := d.DialContext(context.Background(), "tcp", targetHost)
			if err != nil {
				tl.logger.Errorf("tunnel %s: dial %s: %v", id, targetHost, err)
				return
			}
			defer tconn.Close()

			tl.logger.Debugf("tunnel %s: connected to %s", id, targetHost)

			bicopyTunnel(
				tunnelLeg{name: "client->target", dst: tconn, src: conn},
				tunnelLeg{name: "target->client", dst: conn, src: tconn},
			)
		}()
	}
}

// closeConns force-closes every connection currently tunneling.
func (tl *tunnelListener) closeConns() {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	for conn := range tl.conns {
		conn.Close()
	}
}

// CloseTunnel stops a listener started by CreateTunnel.
func CloseTunnel(localAddress string, closeConnections bool) (bool, error) {
	v, ok := tunnels.LoadAndDelete(localAddress)
	if !ok {
		return false, nil
	}
	tl := v.(*tunnelListener) //nolint:forcetypeassert // only *tunnelListener values are ever stored here.

	err := tl.ln.Close()
	if closeConnections {
		tl.closeConns()
	}
	tl.wg.Wait()
	return true, err
}

// RedactURL returns rawURL with any password in its userinfo masked, for
// logging a proxy URL without leaking its credentials.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return redactURL(u)
}

func portOf(addr net.Addr) string {
	_, port, _ := net.SplitHostPort(addr.String())
	return port
}
