// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package proxychain implements a programmable HTTP proxy. It accepts
// client connections and either forwards plain HTTP requests to a target
// origin, or tunnels arbitrary TCP traffic via HTTP CONNECT.
//
// Every request is dispatched one of four ways: direct to the origin,
// chained through an upstream HTTP/HTTPS proxy, chained through a
// SOCKS4/4a/5/5h proxy, or intercepted and answered with a caller
// supplied synthetic response. A PrepareRequestFunc, invoked once per
// request after the request line and Proxy-Authorization header have
// been parsed, decides authentication, upstream routing and interception.
package proxychain
