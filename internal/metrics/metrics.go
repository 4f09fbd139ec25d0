// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the scoring engine:
// - Interaction ingestion throughput and dedup efficiency
// - Scoring latency and reason distribution
// - Similarity rebuild progress
// - Storage retry/breaker behavior
// - API endpoint latency

var (
	// Ingestion Metrics
	InteractionsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interactions_ingested_total",
			Help: "Total interactions processed, by outcome",
		},
		[]string{"outcome"}, // "accepted", "duplicate", "rejected"
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "interaction_ingest_duration_seconds",
			Help:    "End-to-end duration of interaction ingestion",
			Buckets: prometheus.DefBuckets,
		},
	)

	DedupCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "interaction_dedup_cache_hits_total",
			Help: "Duplicate interactions caught by the idempotency cache before reaching storage",
		},
	)

	// Scoring Metrics
	ScoringDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scoring_duration_seconds",
			Help:    "Duration of per-user score computation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"}, // "request", "rescore"
	)

	ScoresComputed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scores_computed_total",
			Help: "Total user-work scores computed and persisted",
		},
	)

	// Similarity Metrics
	SimilarityPairsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "similarity_pairs_persisted_total",
			Help: "Similarity edges persisted during rebuilds",
		},
		[]string{"type"}, // "content", "collaborative"
	)

	SimilarityRebuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "similarity_rebuild_duration_seconds",
			Help:    "Duration of full similarity rebuilds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"type"},
	)

	SimilarityRebuildsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "similarity_rebuilds_active",
			Help: "Number of similarity rebuilds currently running",
		},
	)

	// Storage Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	StorageRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storage_retries_total",
			Help: "Transient storage failures that triggered a retry",
		},
	)

	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storage_breaker_open",
			Help: "1 when the storage circuit breaker is open, 0 otherwise",
		},
	)

	// Event Metrics
	RescoreEventsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rescore_events_published_total",
			Help: "Rescore events published to the internal bus",
		},
	)

	RescoreEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rescore_events_dropped_total",
			Help: "Rescore events that failed to publish and were dropped",
		},
	)

	// API Metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
)

// RecordDBQuery records duration and, on failure, an error for a named
// storage operation.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordIngest records one ingestion attempt.
func RecordIngest(outcome string, duration time.Duration) {
	InteractionsIngested.WithLabelValues(outcome).Inc()
	IngestDuration.Observe(duration.Seconds())
}

// RecordAPIRequest records one completed HTTP request.
func RecordAPIRequest(method, endpoint, status string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}
