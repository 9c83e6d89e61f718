// Package metrics exposes prometheus instrumentation for the mutation
// pipeline: parses by mode, superseded preview results, applies by outcome,
// and operation/duration breakdowns.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service registers. Construct one per
// service instance; nothing here is process-global.
type Metrics struct {
	registry *prometheus.Registry

	ParsesTotal        *prometheus.CounterVec
	ParseDuration      prometheus.Histogram
	SupersededTotal    prometheus.Counter
	AppliesTotal       *prometheus.CounterVec
	ApplyDuration      prometheus.Histogram
	OperationsApplied  prometheus.Counter
	BatchWarningsTotal prometheus.Counter
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		ParsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kartograph_parses_total",
			Help: "Parse requests by mode (sync, background, summary).",
		}, []string{"mode"}),
		ParseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kartograph_parse_duration_seconds",
			Help:    "Wall time of honored parse requests.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		SupersededTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kartograph_parse_superseded_total",
			Help: "Preview results discarded because a newer request was issued.",
		}),
		AppliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kartograph_applies_total",
			Help: "Batch apply attempts by outcome (committed, rejected, aborted).",
		}, []string{"outcome"}),
		ApplyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kartograph_apply_duration_seconds",
			Help:    "Wall time of batch applies, including rolled-back ones.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		OperationsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kartograph_operations_applied_total",
			Help: "Operations committed to the store.",
		}),
		BatchWarningsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kartograph_batch_warnings_total",
			Help: "Non-blocking warnings surfaced to authors.",
		}),
	}
	registry.MustRegister(
		m.ParsesTotal,
		m.ParseDuration,
		m.SupersededTotal,
		m.AppliesTotal,
		m.ApplyDuration,
		m.OperationsApplied,
		m.BatchWarningsTotal,
	)
	return m
}

// Handler serves the /metrics endpoint for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Apply outcome labels.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected" // fatal parse/structural errors, never reached the store
	OutcomeAborted   = "aborted"  // apply-time failure, transaction rolled back
)
