// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxychain

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// ProxyAuthorization is the parsed form of a Proxy-Authorization header.
// Only the "Basic" scheme is decoded into Username/Password; any other
// scheme is returned with Type set and Data holding the raw credential
// string, per the Open Question resolution in DESIGN.md.
type ProxyAuthorization struct {
	Type     string
	Data     string
	Username string
	Password string
}

// parseProxyAuthorization parses the Proxy-Authorization header value. An
// empty header value returns the zero value and false: the caller
// decides whether missing credentials are acceptable.
func parseProxyAuthorization(header string) (ProxyAuthorization, bool) {
	if header == "" {
		return ProxyAuthorization{}, false
	}

	scheme, data, ok := strings.Cut(header, " ")
	if !ok {
		return ProxyAuthorization{}, false
	}

	pa := ProxyAuthorization{Type: scheme, Data: data}
	if !strings.EqualFold(scheme, "Basic") {
		return pa, true
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return pa, true
	}

	// Tolerate a missing colon (empty password) rather than rejecting the
	// header outright; net/http's own basic-auth parser rejects that case.
	user, pass, _ := strings.Cut(string(raw), ":")
	pa.Username = user
	pa.Password = pass
	return pa, true
}

// ParseProxyAuthorizationHeader extracts and decodes the Proxy-Authorization
// header from r, if present.
func ParseProxyAuthorizationHeader(r *http.Request) (ProxyAuthorization, bool) {
	return parseProxyAuthorization(r.Header.Get("Proxy-Authorization"))
}

// basicAuthHeaderValue builds the Proxy-Authorization / Authorization header
// value for a "Basic" credential pair.
func basicAuthHeaderValue(username, password string) string {
	raw := username + ":" + password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}
