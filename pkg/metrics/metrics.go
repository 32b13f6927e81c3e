// Package metrics exposes Prometheus counters for turns, segmentation,
// synthesis, enrichment and lookups.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-go/vai-triage/pkg/core/lookup"
	"github.com/vango-go/vai-triage/pkg/core/turn"
)

// Metrics holds all Prometheus metrics for the assistant.
type Metrics struct {
	registry *prometheus.Registry

	// Turn metrics
	TurnsTotal        *prometheus.CounterVec
	TurnDuration      *prometheus.HistogramVec
	InterruptsTotal   prometheus.Counter
	SuppressedTotal   prometheus.Counter
	ChunksTotal       *prometheus.CounterVec
	SynthesisFailures prometheus.Counter

	// Capture metrics
	SegmentsTotal *prometheus.CounterVec

	// Enrichment metrics
	EnrichmentTotal   *prometheus.CounterVec
	EnrichmentRunning prometheus.Gauge

	// Lookup metrics
	LookupFailures *prometheus.CounterVec
}

// New creates a Metrics instance with every metric registered.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "triage"
	}

	registry := prometheus.NewRegistry()

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by response branch",
		},
		[]string{"branch"},
	)

	turnDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time from utterance to end of playback",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"branch"},
	)

	interruptsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interrupts_total",
			Help:      "Turns whose playback was cut short by new speech",
		},
	)

	suppressedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suppressed_turns_total",
			Help:      "Queued turns whose playback was skipped",
		},
	)

	chunksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_chunks_total",
			Help:      "Reply chunks by playback result",
		},
		[]string{"result"},
	)

	synthesisFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_failures_total",
			Help:      "Chunks skipped because synthesis failed",
		},
	)

	segmentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Speech candidates by outcome",
		},
		[]string{"outcome"},
	)

	enrichmentTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_tasks_total",
			Help:      "Background enrichment tasks by outcome",
		},
		[]string{"outcome"},
	)

	enrichmentRunning := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "enrichment_tasks_running",
			Help:      "Enrichment tasks currently running",
		},
	)

	lookupFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_failures_total",
			Help:      "Failed external lookups",
		},
		[]string{"provider", "kind"},
	)

	registry.MustRegister(
		turnsTotal,
		turnDuration,
		interruptsTotal,
		suppressedTotal,
		chunksTotal,
		synthesisFailures,
		segmentsTotal,
		enrichmentTotal,
		enrichmentRunning,
		lookupFailures,
	)

	return &Metrics{
		registry:          registry,
		TurnsTotal:        turnsTotal,
		TurnDuration:      turnDuration,
		InterruptsTotal:   interruptsTotal,
		SuppressedTotal:   suppressedTotal,
		ChunksTotal:       chunksTotal,
		SynthesisFailures: synthesisFailures,
		SegmentsTotal:     segmentsTotal,
		EnrichmentTotal:   enrichmentTotal,
		EnrichmentRunning: enrichmentRunning,
		LookupFailures:    lookupFailures,
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTurn records a completed turn event.
func (m *Metrics) RecordTurn(ev turn.TurnEvent) {
	m.TurnsTotal.WithLabelValues(ev.Branch).Inc()
	m.TurnDuration.WithLabelValues(ev.Branch).Observe(ev.Duration.Seconds())
	if ev.Interrupted {
		m.InterruptsTotal.Inc()
	}
	if ev.Suppressed {
		m.SuppressedTotal.Inc()
	}
	if ev.ChunksPlayed > 0 {
		m.ChunksTotal.WithLabelValues("played").Add(float64(ev.ChunksPlayed))
	}
	if ev.ChunksSkipped > 0 {
		m.ChunksTotal.WithLabelValues("skipped").Add(float64(ev.ChunksSkipped))
	}
	if ev.SynthesisFailures > 0 {
		m.SynthesisFailures.Add(float64(ev.SynthesisFailures))
	}
}

// RecordSegment records one segmenter outcome.
func (m *Metrics) RecordSegment(outcome string) {
	m.SegmentsTotal.WithLabelValues(outcome).Inc()
}

// RecordEnrichment records how a background task ended.
func (m *Metrics) RecordEnrichment(outcome string) {
	m.EnrichmentTotal.WithLabelValues(outcome).Inc()
}

// SetEnrichmentRunning sets the running-task gauge.
func (m *Metrics) SetEnrichmentRunning(n int) {
	m.EnrichmentRunning.Set(float64(n))
}

// RecordLookup is a lookup.Observer. Successful calls are ignored.
func (m *Metrics) RecordLookup(provider string, err error) {
	if err == nil {
		return
	}
	m.LookupFailures.WithLabelValues(provider, failureKind(err)).Inc()
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, lookup.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, lookup.ErrNotFound):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
