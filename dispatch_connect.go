// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxychain

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"

	"github.com/saucelabs/proxychain/internal/socksdial"
)

// dispatchConnect handles a CONNECT request: direct, chain, chainSocks and
// customConnect all funnel through here. Whichever mode is selected, the
// client never gets to see past the "200 Connection Established" line
// until the tunnel is ready (or a failure status is written instead).
func (s *Server) dispatchConnect(c *Connection, conn net.Conn, br *bufio.Reader, req *http.Request, opts HandlerOptions) bool {
	target := net.JoinHostPort(opts.TargetHost, opts.TargetPort)
	ctx := req.Context()

	if opts.CustomConnectHandler != nil {
		s.stats.customConnectCount.Add(1)
		if _, err := fmt.Fprint(conn, "HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
			return false
		}
		opts.CustomConnectHandler(bufferedConn{Conn: conn, br: br}, opts.CustomTag)
		return false
	}

	if opts.UpstreamProxyURL != nil && isSOCKSScheme(opts.UpstreamProxyURL.Scheme) {
		return s.dispatchChainSocks(c, conn, br, req, target, opts)
	}
	if opts.UpstreamProxyURL != nil {
		return s.dispatchChainHTTP(c, conn, br, req, target, opts)
	}

	// direct: dial the target ourselves, no upstream in the middle.
	tconn, err := s.dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		statusCode := classifyDialError(err)
		s.failRequest(c, req, statusCode, err)
		writeRawStatusResponse(conn, statusCode, err.Error())
		return false
	}

	if _, err := fmt.Fprint(conn, "HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
		tconn.Close()
		return false
	}

	s.runTunnel(c, conn, tconn, br)
	return false
}

func isSOCKSScheme(scheme string) bool {
	switch scheme {
	case "socks4", "socks4a", "socks5", "socks5h":
		return true
	default:
		return false
	}
}

// dispatchChainSocks dials target through a SOCKS4/4a/5/5h upstream proxy.
func (s *Server) dispatchChainSocks(c *Connection, conn net.Conn, br *bufio.Reader, req *http.Request, target string, opts HandlerOptions) bool {
	d, err := socksdial.New(socksdial.ContextDialerFunc(s.dialer.DialContext), opts.UpstreamProxyURL)
	if err != nil {
		s.failRequest(c, req, StatusGenericError, err)
		writeRawStatusResponse(conn, StatusGenericError, err.Error())
		return false
	}

	tconn, err := d.DialContext(req.Context(), "tcp", target)
	if err != nil {
		statusCode := classifyDialError(err)
		s.cfg.EventHandlers.tunnelConnectFailed(TunnelConnectFailedEvent{
			ConnectionID: c.ID,
			Mode:         DispatchChainSocks,
			Err:          err,
		})
		s.failRequest(c, req, statusCode, err)
		writeRawStatusResponse(conn, statusCode, err.Error())
		return false
	}

	s.cfg.EventHandlers.tunnelConnectResponded(TunnelConnectRespondedEvent{
		ConnectionID: c.ID,
		StatusCode:   http.StatusOK,
		Mode:         DispatchChainSocks,
	})

	if _, err := fmt.Fprint(conn, "HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
		tconn.Close()
		return false
	}

	s.runTunnel(c, conn, tconn, br)
	return false
}

// dispatchChainHTTP dials target by CONNECTing through an HTTP or HTTPS
// upstream proxy. When the upstream answers but refuses the tunnel, its
// status is mapped to the 590-599 taxonomy (401/407 to
// StatusAuthenticationFailed, anything else non-200 to
// StatusNonSuccessfulResponse) rather than passed through verbatim.
func (s *Server) dispatchChainHTTP(c *Connection, conn net.Conn, br *bufio.Reader, req *http.Request, target string, opts HandlerOptions) bool {
	dial := socksdial.ContextDialerFunc(s.dialer.DialContext)

	var hd *socksdial.HTTPProxyDialer
	if opts.UpstreamProxyURL.Scheme == "https" {
		tlsConfig := &tls.Config{ServerName: opts.UpstreamProxyURL.Hostname()}
		if err := s.cfg.TLSClientConfig.ConfigureTLSConfig(tlsConfig); err != nil {
			s.failRequest(c, req, StatusGenericError, err)
			writeRawStatusResponse(conn, StatusGenericError, err.Error())
			return false
		}
		if opts.IgnoreUpstreamProxyCertificate { //nolint:gosec // opt-in via IgnoreUpstreamProxyCertificate.
			tlsConfig.InsecureSkipVerify = true
		}
		hd = socksdial.HTTPSProxy(dial, opts.UpstreamProxyURL, tlsConfig)
	} else {
		hd = socksdial.HTTPProxy(dial, opts.UpstreamProxyURL)
	}

	res, tconn, err := hd.DialContextR(req.Context(), "tcp", target)
	if err != nil {
		statusCode := classifyDialError(err)
		s.cfg.EventHandlers.tunnelConnectFailed(TunnelConnectFailedEvent{
			ConnectionID: c.ID,
			Mode:         DispatchChain,
			Err:          err,
		})
		s.failRequest(c, req, statusCode, err)
		writeRawStatusResponse(conn, statusCode, err.Error())
		return false
	}
	defer res.Body.Close()

	s.cfg.EventHandlers.tunnelConnectResponded(TunnelConnectRespondedEvent{
		ConnectionID: c.ID,
		StatusCode:   res.StatusCode,
		Mode:         DispatchChain,
	})

	if res.StatusCode != http.StatusOK {
		tconn.Close()
		var statusCode int
		switch res.StatusCode {
		case http.StatusUnauthorized, http.StatusProxyAuthRequired:
			statusCode = StatusAuthenticationFailed
		default:
			statusCode = StatusNonSuccessfulResponse
		}
		refusedErr := fmt.Errorf("upstream proxy refused CONNECT: %s", res.Status)
		s.cfg.EventHandlers.tunnelConnectFailed(TunnelConnectFailedEvent{
			ConnectionID: c.ID,
			Mode:         DispatchChain,
			Err:          refusedErr,
		})
		s.failRequest(c, req, statusCode, refusedErr)
		writeRawStatusResponse(conn, statusCode, "upstream proxy refused CONNECT")
		return false
	}

	if _, err := fmt.Fprint(conn, "HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
		tconn.Close()
		return false
	}

	s.runTunnel(c, conn, tconn, br)
	return false
}

// runTunnel attaches tconn as the connection's current target, drains any
// bytes already buffered in br (a client may have pipelined bytes right
// behind the CONNECT request line), and shovels bytes both ways until
// either side closes.
func (s *Server) runTunnel(c *Connection, client net.Conn, tconn net.Conn, br *bufio.Reader) {
	wrapped, ta := c.attachTarget(tconn)
	defer func() {
		tconn.Close()
		c.detachTarget(ta)
	}()

	if br != nil {
		if n := br.Buffered(); n > 0 {
			buf := make([]byte, n)
			br.Read(buf) //nolint:errcheck // reading from an in-memory bufio buffer cannot fail short of EOF already seen.
			if err := drainBuffered(wrapped, buf); err != nil {
				return
			}
		}
	}

	bicopyTunnel(
		tunnelLeg{name: "client->target", dst: wrapped, src: client},
		tunnelLeg{name: "target->client", dst: client, src: wrapped},
	)
}

// bufferedConn glues a net.Conn back together with a bufio.Reader that may
// already hold bytes read past the CONNECT request line, for handing to a
// CustomConnectHandler.
type bufferedConn struct {
	net.Conn
	br *bufio.Reader
}

func (b bufferedConn) Read(p []byte) (int, error) {
	return b.br.Read(p)
}
