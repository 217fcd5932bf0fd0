// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

// Package metrics exposes Prometheus instrumentation for the telemetry
// pipeline: ingestion throughput, broadcast delivery, durable writes,
// sweep transitions, and websocket connections.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleettrace_ingest_total",
			Help: "Total number of position submissions by outcome",
		},
		[]string{"status"}, // "accepted", "invalid"
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleettrace_ingest_duration_seconds",
			Help:    "Duration of position ingestion in seconds",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
	)

	TrackedVehicles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleettrace_tracked_vehicles",
			Help: "Number of vehicles in the current day partition",
		},
	)

	// Durable store metrics
	StoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleettrace_store_writes_total",
			Help: "Total number of day partition writes by outcome",
		},
		[]string{"status"}, // "ok", "error"
	)

	StoreWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleettrace_store_write_duration_seconds",
			Help:    "Duration of day partition writes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Connectivity sweep metrics
	SweepTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleettrace_sweep_transitions_total",
			Help: "Total number of connectivity transitions by direction",
		},
		[]string{"to"}, // "online", "offline"
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleettrace_sweep_duration_seconds",
			Help:    "Duration of inactivity sweeps in seconds",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1},
		},
	)

	// Broadcast metrics
	BroadcastEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleettrace_broadcast_events_total",
			Help: "Total number of realtime events published by type",
		},
		[]string{"type"},
	)

	BroadcastDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleettrace_broadcast_dropped_total",
			Help: "Total number of events dropped due to full client buffers",
		},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleettrace_websocket_clients",
			Help: "Current number of connected websocket observers",
		},
	)

	// Tracker agent metrics
	RetryQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleettrace_retry_queue_depth",
			Help: "Current number of positions waiting in the retry queue",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleettrace_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleettrace_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
