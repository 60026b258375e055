// Package metrics holds the Prometheus instruments for the generation pipeline.
// All recording methods are safe on a nil *Pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline groups the pipeline counters and histograms.
type Pipeline struct {
	uploads             *prometheus.CounterVec
	generations         *prometheus.CounterVec
	generationsInFlight prometheus.Gauge
	generationDuration  prometheus.Histogram
	artifactFetches     *prometheus.CounterVec
	persistFailures     prometheus.Counter
}

// NewPipeline creates the instruments and registers them on reg.
func NewPipeline(reg prometheus.Registerer) (*Pipeline, error) {
	p := &Pipeline{
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgen_uploads_total",
				Help: "Upload candidates by outcome (succeeded, failed, excluded, truncated).",
			},
			[]string{"outcome"},
		),
		generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgen_generations_total",
				Help: "Finished generation attempts by outcome.",
			},
			[]string{"outcome"},
		),
		generationsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docgen_generations_in_flight",
			Help: "Generation calls currently awaiting the processing service.",
		}),
		generationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docgen_generation_duration_seconds",
			Help:    "Latency of generate calls.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		artifactFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgen_artifact_fetches_total",
				Help: "Artifact fetches by source (cache, service) and outcome.",
			},
			[]string{"source", "outcome"},
		),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docgen_registry_persist_failures_total",
			Help: "Failed attempts to save the registry snapshot.",
		}),
	}

	for _, c := range []prometheus.Collector{
		p.uploads, p.generations, p.generationsInFlight, p.generationDuration, p.artifactFetches, p.persistFailures,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Pipeline) Upload(outcome string, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.uploads.WithLabelValues(outcome).Add(float64(n))
}

// GenerationStarted marks one call in flight and returns the func that finishes it.
func (p *Pipeline) GenerationStarted() func(outcome string) {
	if p == nil {
		return func(string) {}
	}
	start := time.Now()
	p.generationsInFlight.Inc()
	return func(outcome string) {
		p.generationsInFlight.Dec()
		p.generationDuration.Observe(time.Since(start).Seconds())
		p.generations.WithLabelValues(outcome).Inc()
	}
}

func (p *Pipeline) ArtifactFetch(source, outcome string) {
	if p == nil {
		return
	}
	p.artifactFetches.WithLabelValues(source, outcome).Inc()
}

func (p *Pipeline) PersistFailed() {
	if p == nil {
		return
	}
	p.persistFailures.Inc()
}
