// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// ReadinessChecker returns nil when the service can serve requests.
type ReadinessChecker func(ctx context.Context) error

// notificationFailures counts undelivered account emails. It is package-level so
// the auth service can record failures without holding a Server.
var notificationFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "holoauth_notification_failures_total",
		Help: "Total number of account emails that could not be delivered, by kind",
	},
	[]string{"kind"},
)

// RecordNotificationFailure increments the notification failure counter.
func RecordNotificationFailure(kind string) {
	notificationFailures.WithLabelValues(kind).Inc()
}

// Metrics contains custom Prometheus metrics for holoauth.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	FlowsTotal      *prometheus.CounterVec
}

// NewMetrics creates and registers custom holoauth metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holoauth_http_requests_total",
				Help: "Total number of HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "holoauth_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		FlowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holoauth_flows_total",
				Help: "Total number of account flows by flow and outcome code",
			},
			[]string{"flow", "outcome"},
		),
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(m.FlowsTotal)
	reg.MustRegister(notificationFailures)

	return m
}

// RecordFlow counts one completed flow. outcome is "ok" or an error code.
func (m *Metrics) RecordFlow(flow, outcome string) {
	if m == nil {
		return
	}
	m.FlowsTotal.WithLabelValues(flow, outcome).Inc()
}

// newBuildInfo returns a gauge fixed at 1 whose labels identify the running binary.
func newBuildInfo(version, commit string) prometheus.Collector {
	g := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "holoauth_build_info",
			Help: "Build information for the running holoauth binary",
		},
		[]string{"version", "commit"},
	)
	g.WithLabelValues(version, commit).Set(1)
	return g
}
