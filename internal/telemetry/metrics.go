package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	JobsTotal        *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	TasksExtracted   prometheus.Counter
	PoisonMessages   prometheus.Counter
	RunLogFailures   prometheus.Counter
	QueueMessages    *prometheus.GaugeVec
	TranscriptLength prometheus.Histogram
}

// NewMetrics registers the collectors plus the Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		// Labels: outcome (completed/failed/skipped), class (none/validation/transient/...)
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_jobs_total",
			Help: "Import jobs finished by outcome and error class",
		}, []string{"outcome", "class"}),
		// Labels: source (audio/text)
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scribe_job_duration_seconds",
			Help:    "Import job wall time by transcript source",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800},
		}, []string{"source"}),
		TasksExtracted: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_tasks_extracted_total",
			Help: "Tasks persisted from extraction runs",
		}),
		PoisonMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_poison_messages_total",
			Help: "Undecodable queue messages deleted without processing",
		}),
		RunLogFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_run_log_failures_total",
			Help: "Extraction runs that could not be written to the run log",
		}),
		// Labels: state (visible/leased/dead_lettered)
		QueueMessages: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scribe_queue_messages",
			Help: "Queue messages by state at the last observation",
		}, []string{"state"}),
		TranscriptLength: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_transcript_lines",
			Help:    "Attributed transcript lines per extraction run",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}),
	}
}

// Registry exposes the registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveJob records one finished job.
func (m *Metrics) ObserveJob(outcome, class, source string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(outcome, class).Inc()
	if source != "" {
		m.JobDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	}
}

// ObservePoison counts a deleted undecodable message.
func (m *Metrics) ObservePoison() {
	if m == nil {
		return
	}
	m.PoisonMessages.Inc()
}

// SetQueueDepth publishes queue counts.
func (m *Metrics) SetQueueDepth(visible, leased, deadLettered int) {
	if m == nil {
		return
	}
	m.QueueMessages.WithLabelValues("visible").Set(float64(visible))
	m.QueueMessages.WithLabelValues("leased").Set(float64(leased))
	m.QueueMessages.WithLabelValues("dead_lettered").Set(float64(deadLettered))
}
