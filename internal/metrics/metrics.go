// Package metrics provides Prometheus metrics for the query framework
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for obsquery
type Metrics struct {
	// Predicate compiler
	CompilerExecutionsTotal *prometheus.CounterVec
	CompilerDuration        *prometheus.HistogramVec

	// Cache record store
	CacheLookupsTotal *prometheus.CounterVec
	CacheRecordSize   prometheus.Histogram

	// Sequence navigator
	NavigatorStepsTotal     *prometheus.CounterVec
	NavigatorFallbacksTotal prometheus.Counter

	// Garbage collection
	GCRunsTotal           *prometheus.CounterVec
	GCRecordsDeletedTotal prometheus.Counter

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	m := &Metrics{}

	m.CompilerExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obsquery_compiler_executions_total",
			Help: "Total number of compiled query executions",
		},
		[]string{"model", "operation", "status"},
	)

	m.CompilerDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "obsquery_compiler_duration_seconds",
			Help:    "Duration of compiled query executions in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"model", "operation"},
	)

	m.CacheLookupsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obsquery_cache_lookups_total",
			Help: "Cache record lookups by result (hit, miss, race)",
		},
		[]string{"result"},
	)

	m.CacheRecordSize = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "obsquery_cache_record_ids",
			Help:    "Number of ids stored in newly created cache records",
			Buckets: prometheus.ExponentialBuckets(1, 10, 7),
		},
	)

	m.NavigatorStepsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obsquery_navigator_steps_total",
			Help: "Total number of sequence navigator steps",
		},
		[]string{"direction", "found"},
	)

	m.NavigatorFallbacksTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "obsquery_navigator_fallbacks_total",
			Help: "Steps that rebuilt a default-order record because the original was gone",
		},
	)

	m.GCRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obsquery_gc_runs_total",
			Help: "Total number of cache record garbage collection sweeps",
		},
		[]string{"status"},
	)

	m.GCRecordsDeletedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "obsquery_gc_records_deleted_total",
			Help: "Total number of cache records removed by garbage collection",
		},
	)

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obsquery_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "obsquery_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	return m
}

// RecordExecution records one compiled query execution.
func (m *Metrics) RecordExecution(model, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.CompilerExecutionsTotal.WithLabelValues(model, operation, status).Inc()
	m.CompilerDuration.WithLabelValues(model, operation).Observe(duration.Seconds())
}

// RecordCacheLookup records a cache hit, miss or lost race.
func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordCacheRecord records the size of a newly stored ordering.
func (m *Metrics) RecordCacheRecord(ids int) {
	if m == nil {
		return
	}
	m.CacheRecordSize.Observe(float64(ids))
}

// RecordStep records one navigator step.
func (m *Metrics) RecordStep(direction string, found, fallback bool) {
	if m == nil {
		return
	}
	label := "false"
	if found {
		label = "true"
	}
	m.NavigatorStepsTotal.WithLabelValues(direction, label).Inc()
	if fallback {
		m.NavigatorFallbacksTotal.Inc()
	}
}

// RecordGC records one sweep.
func (m *Metrics) RecordGC(deleted int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.GCRunsTotal.WithLabelValues("error").Inc()
		return
	}
	m.GCRunsTotal.WithLabelValues("success").Inc()
	m.GCRecordsDeletedTotal.Add(float64(deleted))
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
