// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Call outcomes used as metric label values.
const (
	outcomeOK        = "ok"
	outcomeError     = "error"
	outcomeTransport = "transport"
	outcomeCanceled  = "canceled"
)

// Metrics are the Prometheus collectors for one side of the bridge.
// A nil *Metrics records nothing.
type Metrics struct {
	Calls        *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
	Handled      *prometheus.CounterVec
	Callbacks    *prometheus.CounterVec
	PendingCalls prometheus.Gauge
}

// NewMetrics creates the collectors. side ("host" or "module") becomes
// a constant label.
func NewMetrics(side string) *Metrics {
	constLabels := prometheus.Labels{"side": side}
	return &Metrics{
		Calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "authbridge",
				Subsystem:   "rpc",
				Name:        "calls_total",
				Help:        "Outbound calls by method and outcome.",
				ConstLabels: constLabels,
			},
			[]string{"method", "outcome"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   "authbridge",
				Subsystem:   "rpc",
				Name:        "call_duration_seconds",
				Help:        "Outbound call latency. Interactive calls such as login include user think time.",
				Buckets:     []float64{0.001, 0.005, 0.025, 0.1, 0.5, 2.5, 10, 60, 300},
				ConstLabels: constLabels,
			},
			[]string{"method"},
		),
		Handled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "authbridge",
				Subsystem:   "rpc",
				Name:        "handled_total",
				Help:        "Inbound calls by method and outcome.",
				ConstLabels: constLabels,
			},
			[]string{"method", "outcome"},
		),
		Callbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "authbridge",
				Subsystem:   "rpc",
				Name:        "callbacks_total",
				Help:        "Pushed callbacks by name and direction (sent, received, dropped).",
				ConstLabels: constLabels,
			},
			[]string{"name", "direction"},
		),
		PendingCalls: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   "authbridge",
				Subsystem:   "rpc",
				Name:        "pending_calls",
				Help:        "Outbound calls awaiting a result.",
				ConstLabels: constLabels,
			},
		),
	}
}

// Register registers every collector with registerer.
func (m *Metrics) Register(registerer prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{m.Calls, m.CallDuration, m.Handled, m.Callbacks, m.PendingCalls} {
		if err := registerer.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observeCall(method, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(method, outcome).Inc()
	m.CallDuration.WithLabelValues(method).Observe(seconds)
}

func (m *Metrics) observeHandled(method, outcome string) {
	if m == nil {
		return
	}
	m.Handled.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) observeCallback(name, direction string) {
	if m == nil {
		return
	}
	m.Callbacks.WithLabelValues(name, direction).Inc()
}

func (m *Metrics) pending(delta float64) {
	if m == nil {
		return
	}
	m.PendingCalls.Add(delta)
}
