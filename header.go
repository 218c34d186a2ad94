// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxychain

import (
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// hopByHopHeaders is the fixed set of headers that apply to a single
// hop between client and proxy (or proxy and upstream) and must never be
// forwarded verbatim to the next hop.
var hopByHopHeaders = []string{ //nolint:gochecknoglobals
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// stripHopByHopHeaders removes the fixed hop-by-hop header set, plus any
// additional header named in a Connection header token (RFC 7230 §6.1),
// from h in place.
func stripHopByHopHeaders(h http.Header) {
	for _, tok := range h.Values("Connection") {
		for _, name := range strings.Split(tok, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

// isUpgradeRequest reports whether r is asking to switch protocols, the one
// case a proxy must not strip the Connection/Upgrade pair for.
func isUpgradeRequest(h http.Header) bool {
	return httpguts.HeaderValuesContainsToken(h["Connection"], "Upgrade") && h.Get("Upgrade") != ""
}

// validateHeaderFields drops, in place, every header name that isn't a valid
// HTTP field name and every value that isn't a valid field value, rather
// than forwarding a pair that could desync the next hop's parser.
func validateHeaderFields(h http.Header) {
	for name, values := range h {
		if !httpguts.ValidHeaderFieldName(name) {
			delete(h, name)
			continue
		}

		kept := values[:0]
		for _, v := range values {
			if httpguts.ValidHeaderFieldValue(v) {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			delete(h, name)
		} else {
			h[name] = kept
		}
	}
}

// dedupeHostHeader keeps only the first Host header value; a second Host
// header is a smuggling vector and net/http already refuses to serialize a
// request with ambiguous Host, so this runs before the request is handed to
// a Transport.
func dedupeHostHeader(h http.Header) {
	if len(h["Host"]) > 1 {
		h["Host"] = h["Host"][:1]
	}
}

// defaultPortForScheme returns u's Host with an explicit port, using the
// scheme's well-known default (http, ws, https, wss, ftp) when one isn't
// present. For any other scheme a Host without a port is returned as is.
func defaultPortForScheme(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}

	var port string
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		port = "80"
	case "https", "wss":
		port = "443"
	case "ftp":
		port = "21"
	default:
		return u.Host
	}

	host := u.Hostname()
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return host + ":" + port
}

// redactURL returns u with any password in its userinfo masked, used for
// log lines and the public RedactURL helper.
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Redacted()
}
