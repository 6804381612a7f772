// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mimi"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Job metrics
	JobsTotal   *prometheus.CounterVec
	JobsActive  prometheus.Gauge
	JobDuration prometheus.Histogram

	// Segment metrics
	SegmentsTotal     prometheus.Counter
	SegmentTranscribe *prometheus.HistogramVec
	STTErrors         *prometheus.CounterVec

	// Outcome metrics
	SummariesTotal    *prometheus.CounterVec
	CleanupErrors     *prometheus.CounterVec
	EventPublishTotal *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of processing jobs by terminal status",
		}, []string{"status"}),
		JobsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Number of jobs currently running",
		}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall-clock duration of a processing job",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}),

		SegmentsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Total number of segments submitted for transcription",
		}),
		SegmentTranscribe: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_transcribe_seconds",
			Help:      "Latency of a single segment transcription call",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"provider"}),
		STTErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of failed segment transcriptions",
		}, []string{"provider", "error_type"}),
		SummariesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Total number of summarization attempts by result",
		}, []string{"result"}),
		CleanupErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_errors_total",
			Help:      "Total number of temporary file or directory removals that failed",
		}, []string{"kind"}),
		EventPublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_total",
			Help:      "Total number of job events published by result",
		}, []string{"result"}),
	}
}

// RecordJobStart records a job entering the running state.
func (m *Metrics) RecordJobStart() {
	if m == nil {
		return
	}
	m.JobsActive.Inc()
}

// RecordJobEnd records a job reaching a terminal status.
func (m *Metrics) RecordJobEnd(status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.JobsActive.Dec()
	m.JobsTotal.WithLabelValues(status).Inc()
	m.JobDuration.Observe(durationSeconds)
}

// RecordSegment records one segment transcription attempt.
func (m *Metrics) RecordSegment(provider string, err error, errorType string, seconds float64) {
	if m == nil {
		return
	}
	m.SegmentsTotal.Inc()
	m.SegmentTranscribe.WithLabelValues(provider).Observe(seconds)
	if err != nil {
		m.STTErrors.WithLabelValues(provider, errorType).Inc()
	}
}

// RecordSummary records a summarization outcome ("ok" or "error").
func (m *Metrics) RecordSummary(result string) {
	if m == nil {
		return
	}
	m.SummariesTotal.WithLabelValues(result).Inc()
}

// RecordCleanupError records a failed removal ("chunk", "scratch", "upload").
func (m *Metrics) RecordCleanupError(kind string) {
	if m == nil {
		return
	}
	m.CleanupErrors.WithLabelValues(kind).Inc()
}

// RecordEventPublish records a job event publish outcome.
func (m *Metrics) RecordEventPublish(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.EventPublishTotal.WithLabelValues(result).Inc()
}
