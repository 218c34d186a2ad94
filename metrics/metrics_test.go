// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	proxychain "github.com/saucelabs/proxychain"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()

	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)

	var total float64
	for m := range ch {
		var pb dto.Metric
		require.NoError(t, m.Write(&pb))
		if pb.Counter != nil {
			total += pb.Counter.GetValue()
		}
	}
	return total
}

func TestCollectorObserveRequestIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, "test")

	c.ObserveRequest("GET")
	c.ObserveRequest("GET")
	c.ObserveRequest("POST")

	require.Equal(t, float64(3), counterValue(t, c.requestsTotal))
}

func TestCollectorEventHandlersComposesWithBase(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, "test")

	var baseCalled bool
	handlers := c.EventHandlers(proxychain.EventHandlers{
		RequestFailed: func(proxychain.RequestFailedEvent) { baseCalled = true },
	})

	handlers.RequestFailed(proxychain.RequestFailedEvent{StatusCode: 594})

	require.True(t, baseCalled, "composed base handler was not called")
	require.Equal(t, float64(1), counterValue(t, c.errorsTotal))
}

func TestConnectionBytesHandlesNilTargetPointers(t *testing.T) {
	stats := proxychain.ConnectionStats{SrcTxBytes: 10, SrcRxBytes: 5}
	require.Equal(t, uint64(15), connectionBytes(stats))

	trg := uint64(7)
	stats.TrgTxBytes = &trg
	require.Equal(t, uint64(22), connectionBytes(stats))
}
