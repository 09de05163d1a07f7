// Switchboard - VATSIM Landline Coordination Backend
// Copyright 2026 Chicago ARTCC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chiartcc/switchboard

// Package metrics provides Prometheus instrumentation for the landline core:
// session admission, call lifecycle, signaling relay, the liveness poll, and
// the HTTP API surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session / presence metrics
	SessionsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "switchboard_sessions_connected",
			Help: "Current number of admitted controller sessions",
		},
	)

	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_admissions_total",
			Help: "Total connection admission attempts by outcome",
		},
		[]string{"outcome"}, // "admitted", "not_authenticated", "rating", "offline", "no_position"
	)

	SessionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "switchboard_sessions_evicted_total",
			Help: "Total sessions force-disconnected by the presence sweep",
		},
	)

	// Landline registry metrics
	LandlinesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "switchboard_landlines_active",
			Help: "Current number of registered landline calls",
		},
	)

	LandlineCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_landline_commands_total",
			Help: "Total call-control commands processed by command and result",
		},
		[]string{"command", "result"},
	)

	SignalsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_signals_relayed_total",
			Help: "Total WebRTC signaling payloads relayed by direction",
		},
		[]string{"direction"}, // "init", "return"
	)

	// Liveness poller metrics
	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "switchboard_vatsim_poll_duration_seconds",
			Help:    "Duration of VATSIM data feed fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PollErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "switchboard_vatsim_poll_errors_total",
			Help: "Total failed VATSIM data feed fetches",
		},
	)

	ControllersOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "switchboard_controllers_online",
			Help: "Controllers reported by the last successful data feed fetch",
		},
	)

	// Position store metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "switchboard_db_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "switchboard_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordAdmission increments the admission counter for an outcome.
func RecordAdmission(outcome string) {
	AdmissionsTotal.WithLabelValues(outcome).Inc()
}

// RecordCommand increments the landline command counter.
func RecordCommand(command, result string) {
	LandlineCommands.WithLabelValues(command, result).Inc()
}

// RecordAPIRequest records a completed API request.
func RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
