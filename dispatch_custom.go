// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxychain

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"strconv"
)

// respondCustom answers a plain request synthetically instead of forwarding
// it anywhere, using the CustomResponse the prepare hook's
// CustomResponseFunc built for this request. A nil or zero StatusCode
// defaults to 200.
func (s *Server) respondCustom(c *Connection, conn net.Conn, req *http.Request, opts HandlerOptions) bool {
	cr, err := opts.CustomResponseFunc()
	if err != nil {
		s.failRequest(c, req, StatusGenericError, err)
		writeRawStatusResponse(conn, StatusGenericError, err.Error())
		return false
	}
	if cr == nil {
		cr = &CustomResponse{}
	}

	s.stats.customResponseCount.Add(1)

	statusCode := cr.StatusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}

	header := http.Header{}
	for k, vs := range cr.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	stripHopByHopHeaders(header)

	resp := &http.Response{
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     header,
		Body:       http.NoBody,
		Close:      req.Close,
	}
	if len(cr.Body) > 0 {
		resp.Body = io.NopCloser(bytes.NewReader(cr.Body))
		resp.ContentLength = int64(len(cr.Body))
		header.Set("Content-Length", strconv.Itoa(len(cr.Body)))
	}

	if err := resp.Write(conn); err != nil {
		return false
	}
	return !resp.Close
}
