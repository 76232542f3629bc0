// Package telemetry holds the prometheus collectors for decision, ingest,
// and HTTP activity. Collectors register on an explicit registry so tests
// never collide on global state; a nil *Metrics is a valid no-op receiver,
// letting components run unmetered.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stratamed/policymatch/internal/types"
)

const namespace = "policymatch"

// Metrics bundles every collector the service records.
type Metrics struct {
	registry *prometheus.Registry

	decisionsTotal  *prometheus.CounterVec
	ruleEvaluations *prometheus.CounterVec
	missingFields   *prometheus.CounterVec
	chunksIngested  *prometheus.CounterVec
	draftsCreated   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New builds the collectors on a fresh registry.
func New() *Metrics {
	return NewWith(prometheus.NewRegistry())
}

// NewWith builds the collectors and registers them on reg.
func NewWith(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,

		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Authorization decisions by outcome",
			},
			[]string{"outcome"},
		),

		ruleEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_evaluations_total",
				Help:      "Per-rule evaluation results by category and outcome",
			},
			[]string{"category", "outcome"},
		),

		missingFields: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "missing_fields_total",
				Help:      "Patient fields consulted but absent during evaluation",
			},
			[]string{"field"},
		),

		chunksIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_ingested_total",
				Help:      "Classified policy chunks by category",
			},
			[]string{"category"},
		),

		draftsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drafts_created_total",
				Help:      "Draft rules created by extraction, by category",
			},
			[]string{"category"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration by route and status code",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "code"},
		),
	}

	reg.MustRegister(
		m.decisionsTotal,
		m.ruleEvaluations,
		m.missingFields,
		m.chunksIngested,
		m.draftsCreated,
		m.requestDuration,
	)

	return m
}

// Handler exposes the registry in prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDecision counts one aggregated case decision.
func (m *Metrics) RecordDecision(outcome types.Decision) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordEvaluation counts one rule evaluation result.
func (m *Metrics) RecordEvaluation(category types.Category, outcome types.Tristate) {
	if m == nil {
		return
	}
	m.ruleEvaluations.WithLabelValues(string(category), outcome.String()).Inc()
}

// RecordMissingFields counts each consulted-but-absent field.
func (m *Metrics) RecordMissingFields(fields []string) {
	if m == nil {
		return
	}
	for _, f := range fields {
		m.missingFields.WithLabelValues(f).Inc()
	}
}

// RecordChunk counts one classified chunk.
func (m *Metrics) RecordChunk(category types.Category) {
	if m == nil {
		return
	}
	m.chunksIngested.WithLabelValues(string(category)).Inc()
}

// RecordDraft counts one draft rule created from extraction.
func (m *Metrics) RecordDraft(category types.Category) {
	if m == nil {
		return
	}
	m.draftsCreated.WithLabelValues(string(category)).Inc()
}

// RecordHTTPRequest observes one served request.
func (m *Metrics) RecordHTTPRequest(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(duration.Seconds())
}
