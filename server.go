// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxychain

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ServerStats holds the monotonic, never-reset counters exposed across a
// Server's whole lifetime.
type ServerStats struct {
	HTTPRequestCount    uint64
	ConnectRequestCount uint64
	CustomResponseCount uint64
	CustomConnectCount  uint64
	TrafficUsedInBytes  uint64
}

// ServerConfig configures a Server. PrepareRequest is required; everything
// else has a usable zero value.
type ServerConfig struct {
	PrepareRequest  PrepareRequestFunc
	DialConfig      *DialConfig
	DNSConfig       *DNSConfig
	TLSClientConfig *TLSClientConfig
	EventHandlers   EventHandlers
	Logger          Logger

	// AuthRealm is sent in the Proxy-Authenticate challenge when a
	// PrepareRequestResult asks for authentication.
	AuthRealm string
}

// Server accepts client connections and dispatches each request to one of
// the seven supported modes, based entirely on what PrepareRequest decides
// for that request. It keeps no target-routing configuration of its own.
type Server struct {
	cfg    ServerConfig
	dialer *Dialer

	ln net.Listener

	nextID atomic.Int64

	mu     sync.Mutex
	conns  map[int64]*Connection
	closed bool

	stats struct {
		httpRequestCount    atomic.Uint64
		connectRequestCount atomic.Uint64
		customResponseCount atomic.Uint64
		customConnectCount  atomic.Uint64
	}

	wg sync.WaitGroup
}

// NewServer builds a Server ready to Listen. cfg.PrepareRequest must be
// non-nil.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.PrepareRequest == nil {
		return nil, errors.New("proxychain: PrepareRequest is required")
	}
	if cfg.DialConfig == nil {
		cfg.DialConfig = DefaultDialConfig()
	}
	if cfg.DNSConfig == nil {
		cfg.DNSConfig = DefaultDNSConfig()
	}
	if cfg.TLSClientConfig == nil {
		cfg.TLSClientConfig = DefaultTLSClientConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = NopLogger
	}

	return &Server{
		cfg:    cfg,
		dialer: NewDialer(cfg.DialConfig, cfg.DNSConfig),
		conns:  make(map[int64]*Connection),
	}, nil
}

// Listen starts accepting connections on addr and returns the bound
// address, letting callers ask for port 0 and discover what was chosen.
func (s *Server) Listen(network, addr string) (net.Addr, error) {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}
	s.ln = ln

	s.wg.Add(1)
	go s.acceptLoop(ln)

	return ln.Addr(), nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return
			}
			s.cfg.Logger.Errorf("accept: %v", err)
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleClient(conn)
		}()
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops accepting new connections, closes every tracked Connection,
// and waits for their goroutines to exit.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for _, c := range conns {
		c.Client.Close()
	}

	s.wg.Wait()
	return err
}

// Stats returns a snapshot of the server-wide monotonic counters.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		HTTPRequestCount:    s.stats.httpRequestCount.Load(),
		ConnectRequestCount: s.stats.connectRequestCount.Load(),
		CustomResponseCount: s.stats.customResponseCount.Load(),
		CustomConnectCount:  s.stats.customConnectCount.Load(),
		TrafficUsedInBytes:  s.trafficUsedInBytes(),
	}
}

func (s *Server) trafficUsedInBytes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total uint64
	for _, c := range s.conns {
		st := c.Stats()
		total += st.SrcTxBytes + st.SrcRxBytes
		if st.TrgTxBytes != nil {
			total += *st.TrgTxBytes
		}
		if st.TrgRxBytes != nil {
			total += *st.TrgRxBytes
		}
	}
	return total
}

// ConnectionIDs returns the IDs of every currently tracked Connection.
func (s *Server) ConnectionIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	return ids
}

// ConnectionStats returns the byte-accounting snapshot for id, if it is
// still tracked.
func (s *Server) ConnectionStats(id int64) (ConnectionStats, bool) {
	s.mu.Lock()
	c, ok := s.conns[id]
	s.mu.Unlock()
	if !ok {
		return ConnectionStats{}, false
	}
	return c.Stats(), true
}

// CloseConnection closes a single tracked Connection by ID.
func (s *Server) CloseConnection(id int64) bool {
	s.mu.Lock()
	c, ok := s.conns[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	c.Client.Close()
	return true
}

// CloseConnections closes every Connection whose ID is in ids.
func (s *Server) CloseConnections(ids []int64) {
	for _, id := range ids {
		s.CloseConnection(id)
	}
}

func (s *Server) addConnection(c *Connection) {
	s.mu.Lock()
	s.conns[c.ID] = c
	s.mu.Unlock()
}

func (s *Server) removeConnection(c *Connection) {
	s.mu.Lock()
	delete(s.conns, c.ID)
	s.mu.Unlock()

	s.cfg.EventHandlers.connectionClosed(ConnectionClosedEvent{
		ConnectionID: c.ID,
		Stats:        c.Stats(),
	})
}

// handleClient owns one accepted client socket end to end: it is the
// one-goroutine-per-connection loop the concurrency model relies on in
// place of a single-threaded cooperative scheduler.
func (s *Server) handleClient(conn net.Conn) {
	id := s.nextID.Add(1)
	c := newConnection(id, conn)
	s.addConnection(c)
	defer func() {
		conn.Close()
		s.removeConnection(c)
	}()

	countedConn := &countingConn{Conn: conn, acc: &c.src}
	br := bufio.NewReader(countedConn)

	for {
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		req.RemoteAddr = conn.RemoteAddr().String()

		keepAlive := s.serveOneRequest(c, countedConn, br, req)
		if !keepAlive {
			return
		}
	}
}

// serveOneRequest parses auth/target info, invokes the prepare hook, and
// dispatches to the selected mode. It returns whether the client connection
// should be kept open for another request.
func (s *Server) serveOneRequest(c *Connection, conn net.Conn, br *bufio.Reader, req *http.Request) bool {
	isConnect := req.Method == http.MethodConnect

	hostname, port, host, err := requestTarget(req, isConnect)
	if err != nil {
		s.failRequest(c, req, StatusGenericError, err)
		writeRawStatusResponse(conn, StatusGenericError, err.Error())
		return false
	}

	pa, _ := ParseProxyAuthorizationHeader(req)

	in := PrepareRequestInput{
		ConnectionID: c.ID,
		Method:       req.Method,
		URL:          req.URL,
		Header:       req.Header,
		Username:     pa.Username,
		Password:     pa.Password,
		Hostname:     hostname,
		Port:         port,
		IsHTTP:       !isConnect,
	}

	result, err := s.cfg.PrepareRequest(in)
	if err != nil {
		var reqErr *RequestError
		statusCode := StatusGenericError
		body := err.Error()
		if errors.As(err, &reqErr) {
			statusCode = reqErr.StatusCode
			if reqErr.Message != "" {
				body = reqErr.Message
			}
		}
		s.failRequest(c, req, statusCode, err)
		writeRawStatusResponse(conn, statusCode, body)
		return false
	}

	if result == nil {
		result = &PrepareRequestResult{}
	}

	if result.RequestAuthentication {
		s.respondAuthRequired(conn, result.FailMsg)
		return true
	}

	opts := HandlerOptions{
		TargetHost:                     hostname,
		TargetPort:                     port,
		IsHTTP:                         !isConnect,
		UpstreamProxyURL:               result.UpstreamProxyURL,
		IgnoreUpstreamProxyCertificate: result.IgnoreUpstreamProxyCertificate,
		CustomResponseFunc:             result.CustomResponseFunc,
		CustomConnectHandler:           result.CustomConnectHandler,
		LocalAddress:                   result.LocalAddress,
		CustomTag:                      result.CustomTag,
	}

	req.Host = host
	if req.URL != nil {
		req.URL.Host = host
	}

	if isConnect {
		s.stats.connectRequestCount.Add(1)
		return s.dispatchConnect(c, conn, br, req, opts)
	}

	s.stats.httpRequestCount.Add(1)
	return s.dispatchForward(c, conn, br, req, opts)
}

func (s *Server) respondAuthRequired(conn net.Conn, msg string) {
	if msg == "" {
		msg = "Proxy authentication required"
	}
	realm := s.cfg.AuthRealm
	if realm == "" {
		realm = "proxychain"
	}
	fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\nDate: %s\r\nProxy-Authenticate: Basic realm=%q\r\nContent-Length: %d\r\nConnection: keep-alive\r\n\r\n%s",
		http.StatusProxyAuthRequired, StatusText(http.StatusProxyAuthRequired), time.Now().UTC().Format(http.TimeFormat), realm, len(msg), msg)
}

func (s *Server) failRequest(c *Connection, req *http.Request, statusCode int, err error) {
	urlStr := ""
	if req != nil && req.URL != nil {
		urlStr = req.URL.String()
	}
	method := ""
	if req != nil {
		method = req.Method
	}
	s.cfg.EventHandlers.requestFailed(RequestFailedEvent{
		ConnectionID: c.ID,
		Method:       method,
		URL:          urlStr,
		StatusCode:   statusCode,
		Err:          err,
	})
}

// requestTarget derives the hostname/port/normalized Host string for a
// request, handling both the absolute-URI form used by plain HTTP proxy
// requests and the authority form used by CONNECT.
func requestTarget(req *http.Request, isConnect bool) (hostname, port, host string, err error) {
	if isConnect {
		hp, err := ParseHostPortPairFromAuthority(req.RequestURI)
		if err != nil {
			return "", "", "", err
		}
		return hp.Host, hp.Port, net.JoinHostPort(hp.Host, hp.Port), nil
	}

	u := req.URL
	if u.Host == "" {
		u.Host = req.Host
	}
	hostPort := defaultPortForScheme(u)
	h, p, err := net.SplitHostPort(hostPort)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid request target: %w", err)
	}
	return h, p, hostPort, nil
}

// ParseHostPortPairFromAuthority parses the "host:port" authority-form
// target of a CONNECT request line.
func ParseHostPortPairFromAuthority(authority string) (HostPort, error) {
	h, p, err := net.SplitHostPort(authority)
	if err != nil {
		return HostPort{}, fmt.Errorf("invalid CONNECT target %q: %w", authority, err)
	}
	return HostPort{Host: h, Port: p}, nil
}

// connectionIDFallback generates an opaque identifier for contexts that
// need one but have no integer Connection ID handy (e.g. CreateTunnel's
// raw tunnel connections, for log correlation).
func connectionIDFallback() string {
	return uuid.NewString()
}
