// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the search service.
//
// # Description
//
// Metrics cover the query-processing pipeline end to end:
//   - Request counters by endpoint and status
//   - Request latency histograms
//   - Search executions by strategy
//   - Guardrail blocks by category
//   - Active session gauge
//
// Metrics are exposed via the /metrics endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "vehiclesearch"

// Subsystem for the HTTP query surface
const querySubsystem = "query"

// Metrics holds all Prometheus metrics for the search service.
//
// # Description
//
// Initialize once at startup via NewMetrics(). Construct with a fresh
// registry in tests to avoid duplicate-registration panics.
//
// # Thread Safety
//
// All operations are thread-safe.
type Metrics struct {
	// RequestsTotal counts requests by endpoint and status.
	// Labels: endpoint (parse, compose, refine, search, ...), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures request latency by endpoint.
	RequestDurationSeconds *prometheus.HistogramVec

	// SearchesTotal counts search executions by strategy.
	// Labels: strategy (exact_only, semantic_only, hybrid)
	SearchesTotal *prometheus.CounterVec

	// SearchResultsReturned measures how many results each search produced.
	SearchResultsReturned prometheus.Histogram

	// GuardrailBlocksTotal counts blocked utterances by category.
	// Labels: category (prompt_injection, off_domain, pii, abuse)
	GuardrailBlocksTotal *prometheus.CounterVec

	// RateLimitedTotal counts requests rejected by the per-session rate limit.
	RateLimitedTotal prometheus.Counter

	// DegradedSearchesTotal counts hybrid searches that lost a leg.
	DegradedSearchesTotal prometheus.Counter

	registerer prometheus.Registerer
}

// NewMetrics creates and registers all metrics on the given registerer.
// Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registerer: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: querySubsystem,
				Name:      "requests_total",
				Help:      "Total number of requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		RequestDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: querySubsystem,
				Name:      "request_duration_seconds",
				Help:      "Request latency by endpoint in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"endpoint"},
		),

		SearchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: querySubsystem,
				Name:      "searches_total",
				Help:      "Total search executions by strategy",
			},
			[]string{"strategy"},
		),

		SearchResultsReturned: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: querySubsystem,
				Name:      "search_results_returned",
				Help:      "Number of results returned per search",
				Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
			},
		),

		GuardrailBlocksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: querySubsystem,
				Name:      "guardrail_blocks_total",
				Help:      "Total utterances blocked by the guardrail, by category",
			},
			[]string{"category"},
		),

		RateLimitedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: querySubsystem,
				Name:      "rate_limited_total",
				Help:      "Total requests rejected by the per-session rate limit",
			},
		),

		DegradedSearchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: querySubsystem,
				Name:      "degraded_searches_total",
				Help:      "Total hybrid searches served with one retrieval leg down",
			},
		),
	}
}

// RegisterActiveSessions registers a gauge backed by the session store's
// live count. Registered separately because the store is constructed
// after the metrics in some wiring orders.
func (m *Metrics) RegisterActiveSessions(count func() float64) {
	m.registerer.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: querySubsystem,
			Name:      "active_sessions",
			Help:      "Number of sessions currently held in memory",
		},
		count,
	))
}
