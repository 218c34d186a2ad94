// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxychain

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"
)

// Custom status codes returned to the client when a request cannot be
// completed the normal way. The 590-599 range does not collide with any
// IANA registered HTTP status and mirrors the status codes emitted by the
// proxy-chain libraries this server is compatible with.
const (
	StatusNonSuccessfulResponse = 590 // upstream proxy answered CONNECT with a non-200 status other than 401/407
	StatusLocalChainRefused     = 591 // reserved, kept for wire compatibility
	StatusOutOfRangeResponse    = 592 // upstream response status code fell outside 100-599
	StatusDNSLookupFailed       = 593 // target host name did not resolve
	StatusConnectionRefused     = 594 // target or upstream proxy refused the TCP connection
	StatusConnectionReset       = 595 // connection reset by peer mid-request
	StatusBrokenPipe            = 596 // write to a connection that was already closed by the peer
	StatusAuthenticationFailed  = 597 // upstream proxy rejected our Proxy-Authorization
	StatusGenericError          = 599 // none of the above, message carries detail
)

// statusText supplements http.StatusText for the custom codes above.
var statusText = map[int]string{ //nolint:gochecknoglobals
	StatusNonSuccessfulResponse: "Non Successful Response",
	StatusLocalChainRefused:     "Local Chain Refused",
	StatusOutOfRangeResponse:    "Out Of Range Response",
	StatusDNSLookupFailed:       "DNS Lookup Failed",
	StatusConnectionRefused:     "Connection Refused",
	StatusConnectionReset:       "Connection Reset",
	StatusBrokenPipe:            "Broken Pipe",
	StatusAuthenticationFailed:  "Authentication Failed",
	StatusGenericError:          "Generic Error",
}

// StatusText behaves like http.StatusText but also covers the custom
// 590-599 taxonomy.
func StatusText(code int) string {
	if t := http.StatusText(code); t != "" {
		return t
	}
	return statusText[code]
}

// RequestError carries a custom status code alongside the usual error chain,
// the way a handler decides what status line to write back to the client
// when a request cannot be fulfilled.
type RequestError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = StatusText(e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.StatusCode, msg, e.Err)
	}
	return fmt.Sprintf("%d %s", e.StatusCode, msg)
}

func (e *RequestError) Unwrap() error { return e.Err }

// NewRequestError wraps err with the given status code, used as is.
func NewRequestError(statusCode int, err error) *RequestError {
	return &RequestError{StatusCode: statusCode, Err: err}
}

// classifyDialError maps a dial/write/read error observed while talking to a
// target or upstream proxy to one of the custom status codes, the same
// ordered-chain-of-responsibility shape the teacher uses for its own
// 5xx-only error classifier, terminating in the wider 590-599 taxonomy
// instead.
func classifyDialError(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return StatusDNSLookupFailed
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return StatusConnectionRefused
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return StatusConnectionReset
	}
	if errors.Is(err, syscall.EPIPE) {
		return StatusBrokenPipe
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.ErrUnexpectedEOF) {
		return StatusBrokenPipe
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return http.StatusGatewayTimeout
		}
	}

	if isSOCKSAuthError(err) {
		return StatusAuthenticationFailed
	}
	if isSOCKSRefusedError(err) {
		return StatusConnectionRefused
	}

	return StatusGenericError
}

// isSOCKSAuthError recognizes the plain-string errors golang.org/x/net/proxy
// and this module's internal/socksdial client return for failed
// authentication handshakes; neither package defines a sentinel error, so
// substring matching is the only option, same as the teacher's own
// windows-specific error string matching for net errors.
func isSOCKSAuthError(err error) bool {
	s := err.Error()
	return strings.Contains(s, "auth") && (strings.Contains(s, "fail") || strings.Contains(s, "reject"))
}

func isSOCKSRefusedError(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "refused") || strings.Contains(s, "unreachable")
}

// writeRawStatusResponse writes a minimal HTTP/1.1 status line and headers
// directly to w, for use after a connection has already been hijacked off
// net/http's request/response machinery (the CONNECT tunnel error path and
// the custom status codes net/http's own client doesn't know how to parse).
func writeRawStatusResponse(w io.Writer, statusCode int, body string) error {
	text := StatusText(statusCode)
	if text == "" {
		text = "Unknown"
	}
	_, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\nDate: %s\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		statusCode, text, time.Now().UTC().Format(http.TimeFormat), len(body), body)
	return err
}
