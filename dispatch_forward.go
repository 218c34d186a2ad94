// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxychain

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"net/http"

	"github.com/saucelabs/proxychain/internal/socksdial"
)

// dispatchForward handles a plain (non-CONNECT) request: forward,
// forwardSocks and direct all funnel through here, differing only in which
// transport is dialed based on opts.UpstreamProxyURL's scheme. customResponse
// is also decided here, since it only ever applies to plain requests.
func (s *Server) dispatchForward(c *Connection, conn net.Conn, br *bufio.Reader, req *http.Request, opts HandlerOptions) bool {
	if opts.CustomResponseFunc != nil {
		return s.respondCustom(c, conn, req, opts)
	}

	ctx := req.Context()

	// A plain HTTP/HTTPS upstream is itself an HTTP proxy: dial it directly
	// and send it the request in absolute-URI form (forward mode). A SOCKS
	// upstream, and no upstream at all, gives a raw byte tunnel straight to
	// the target, so the request goes out in origin form instead
	// (forwardSocks and direct).
	var (
		target  net.Conn
		err     error
		useProxyForm bool
	)
	switch {
	case opts.UpstreamProxyURL != nil && !isSOCKSScheme(opts.UpstreamProxyURL.Scheme):
		useProxyForm = true
		dialTarget := opts.UpstreamProxyURL.Host
		if opts.UpstreamProxyURL.Scheme == "https" {
			target, err = s.dialTLSUpstreamProxy(ctx, opts)
		} else {
			target, err = s.dialer.DialContext(ctx, "tcp", dialTarget)
		}
	case opts.UpstreamProxyURL != nil:
		d, nerr := socksdial.New(socksdial.ContextDialerFunc(s.dialer.DialContext), opts.UpstreamProxyURL)
		if nerr != nil {
			err = nerr
			break
		}
		target, err = d.DialContext(ctx, "tcp", net.JoinHostPort(opts.TargetHost, opts.TargetPort))
	default:
		target, err = s.dialer.DialContext(ctx, "tcp", net.JoinHostPort(opts.TargetHost, opts.TargetPort))
	}
	if err != nil {
		statusCode := classifyDialError(err)
		if opts.UpstreamProxyURL == nil && statusCode == StatusDNSLookupFailed {
			// direct forward with no upstream of any kind: an unresolvable
			// host is the client's own mistake, not a chain failure, so it
			// gets a plain 404 instead of the 593 used everywhere else.
			statusCode = http.StatusNotFound
		}
		s.failRequest(c, req, statusCode, err)
		writeRawStatusResponse(conn, statusCode, err.Error())
		return false
	}

	wrapped, ta := c.attachTarget(target)
	defer func() {
		target.Close()
		c.detachTarget(ta)
	}()

	stripHopByHopHeaders(req.Header)
	dedupeHostHeader(req.Header)
	req.Header.Del("Proxy-Connection")
	validateHeaderFields(req.Header)

	var writeErr error
	if useProxyForm {
		if u := opts.UpstreamProxyURL.User; u != nil {
			pass, _ := u.Password()
			req.Header.Set("Proxy-Authorization", basicAuthHeaderValue(u.Username(), pass))
		}
		writeErr = req.WriteProxy(wrapped)
	} else {
		writeErr = req.Write(wrapped)
	}
	if writeErr != nil {
		statusCode := classifyDialError(writeErr)
		s.failRequest(c, req, statusCode, writeErr)
		writeRawStatusResponse(conn, statusCode, writeErr.Error())
		return false
	}

	tbr := bufio.NewReader(wrapped)
	resp, err := http.ReadResponse(tbr, req)
	if err != nil {
		statusCode := classifyDialError(err)
		s.failRequest(c, req, statusCode, err)
		writeRawStatusResponse(conn, statusCode, err.Error())
		return false
	}
	defer resp.Body.Close()

	statusCode := resp.StatusCode
	if statusCode == http.StatusProxyAuthRequired {
		// The upstream (not this proxy) demanded Proxy-Authorization; the
		// client has no relationship with it, so surface this as our own
		// failure instead of passing a confusing 407 straight through.
		statusCode = StatusAuthenticationFailed
		s.failRequest(c, req, statusCode, errUpstreamAuthRequired)
		writeRawStatusResponse(conn, statusCode, "upstream proxy demanded authentication")
		return false
	}
	if statusCode < 100 || statusCode > 599 {
		statusCode = StatusOutOfRangeResponse
	}
	resp.StatusCode = statusCode

	stripHopByHopHeaders(resp.Header)
	validateHeaderFields(resp.Header)
	resp.Close = !shouldKeepAlive(req, resp)

	if err := resp.Write(conn); err != nil {
		return false
	}

	return !resp.Close
}

var errUpstreamAuthRequired = &RequestError{StatusCode: StatusAuthenticationFailed, Message: "upstream proxy authentication required"}

// dialTLSUpstreamProxy connects to an https-scheme upstream proxy over TLS,
// for the forward dispatch mode's "talk HTTP straight to the proxy" path.
func (s *Server) dialTLSUpstreamProxy(ctx context.Context, opts HandlerOptions) (net.Conn, error) {
	raw, err := s.dialer.DialContext(ctx, "tcp", opts.UpstreamProxyURL.Host)
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{ServerName: opts.UpstreamProxyURL.Hostname()}
	if err := s.cfg.TLSClientConfig.ConfigureTLSConfig(tlsConfig); err != nil {
		raw.Close()
		return nil, err
	}
	if opts.IgnoreUpstreamProxyCertificate { //nolint:gosec // opt-in via IgnoreUpstreamProxyCertificate.
		tlsConfig.InsecureSkipVerify = true
	}
	tconn := tls.Client(raw, tlsConfig)
	if err := tconn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, err
	}
	return tconn, nil
}

// shouldKeepAlive reports whether the client<->proxy leg of this request can
// stay open for another request, honoring both ends' Connection headers.
func shouldKeepAlive(req *http.Request, resp *http.Response) bool {
	if req.Close || resp.Close {
		return false
	}
	if req.ProtoAtLeast(1, 1) && resp.ProtoAtLeast(1, 1) {
		return true
	}
	return false
}
