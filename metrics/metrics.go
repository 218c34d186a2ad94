// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package metrics exposes the server's dispatch activity as Prometheus
// collectors, instrumented through the same EventHandlers hooks an
// embedder would use for its own logging or auditing.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	proxychain "github.com/saucelabs/proxychain"
)

// Collector tracks dispatch outcomes, bytes transferred and error reasons
// for every connection a Server handles.
type Collector struct {
	requestsTotal *prometheus.CounterVec
	tunnelsTotal  *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	bytesTotal    prometheus.Counter
}

// NewCollector registers a Collector's metrics under namespace in r. A nil
// r still returns a usable Collector, registered into a throwaway registry.
func NewCollector(r prometheus.Registerer, namespace string) *Collector {
	if r == nil {
		r = prometheus.NewRegistry()
	}
	f := promauto.With(r)

	return &Collector{
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Number of HTTP requests handled, by method.",
		}, []string{"method"}),
		tunnelsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tunnels_total",
			Help:      "Number of upstream CONNECT outcomes, by dispatch mode and status (the upstream's reply status, or \"error\" when no tunnel was established).",
		}, []string{"mode", "status"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Number of request failures, by status code.",
		}, []string{"status"}),
		bytesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_bytes_total",
			Help:      "Cumulative bytes transferred across every connection that has been closed.",
		}),
	}
}

// EventHandlers returns the callbacks a ServerConfig should install to keep
// this Collector up to date, composed with any handlers already set on base
// so a caller can still run its own logging alongside the metrics.
func (c *Collector) EventHandlers(base proxychain.EventHandlers) proxychain.EventHandlers {
	prevClosed := base.ConnectionClosed
	prevFailed := base.RequestFailed
	prevResponded := base.TunnelConnectResponded
	prevTunnelFailed := base.TunnelConnectFailed

	return proxychain.EventHandlers{
		ConnectionClosed: func(e proxychain.ConnectionClosedEvent) {
			c.bytesTotal.Add(float64(connectionBytes(e.Stats)))
			if prevClosed != nil {
				prevClosed(e)
			}
		},
		RequestFailed: func(e proxychain.RequestFailedEvent) {
			c.errorsTotal.WithLabelValues(strconv.Itoa(e.StatusCode)).Inc()
			if prevFailed != nil {
				prevFailed(e)
			}
		},
		TunnelConnectResponded: func(e proxychain.TunnelConnectRespondedEvent) {
			c.tunnelsTotal.WithLabelValues(string(e.Mode), strconv.Itoa(e.StatusCode)).Inc()
			if prevResponded != nil {
				prevResponded(e)
			}
		},
		TunnelConnectFailed: func(e proxychain.TunnelConnectFailedEvent) {
			c.tunnelsTotal.WithLabelValues(string(e.Mode), "error").Inc()
			if prevTunnelFailed != nil {
				prevTunnelFailed(e)
			}
		},
	}
}

// ObserveRequest records a successfully dispatched request, for callers
// driving the counter directly from their prepare hook rather than through
// EventHandlers (which only fires on failure or tunnel completion).
func (c *Collector) ObserveRequest(method string) {
	c.requestsTotal.WithLabelValues(method).Inc()
}

func connectionBytes(s proxychain.ConnectionStats) uint64 {
	total := s.SrcTxBytes + s.SrcRxBytes
	if s.TrgTxBytes != nil {
		total += *s.TrgTxBytes
	}
	if s.TrgRxBytes != nil {
		total += *s.TrgRxBytes
	}
	return total
}
