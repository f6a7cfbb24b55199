package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sentinelx"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetchTotal   *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec
	commitsTotal *prometheus.CounterVec
	skipsTotal   *prometheus.CounterVec
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	mountedViews prometheus.Gauge
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		fetchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_fetch_total",
				Help:      "Backend calls by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		fetchLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_fetch_duration_seconds",
				Help:      "Backend call duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"op"},
		),
		commitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slot_commits_total",
				Help:      "Accepted slot commits by view, kind and status",
			},
			[]string{"view", "kind", "status"},
		),
		skipsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slot_skips_total",
				Help:      "Fetches or commits skipped, by reason (in_flight, stale, stopped)",
			},
			[]string{"view", "kind", "reason"},
		),
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commit_events_sent_total",
				Help:      "Commit events shipped to a sink backend",
			},
			[]string{"backend", "view"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of internal operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		mountedViews: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mounted_views",
			Help:      "Number of currently mounted views",
		}),
	}
}

// RecordFetch records one backend call.
func (r *Recorder) RecordFetch(op, outcome string, seconds float64) {
	r.fetchTotal.WithLabelValues(op, outcome).Inc()
	r.fetchLatency.WithLabelValues(op).Observe(seconds)
}

// RecordCommit records an accepted slot commit.
func (r *Recorder) RecordCommit(view, kind, status string) {
	r.commitsTotal.WithLabelValues(view, kind, status).Inc()
}

// RecordSkip records a skipped fetch or a discarded commit.
func (r *Recorder) RecordSkip(view, kind, reason string) {
	r.skipsTotal.WithLabelValues(view, kind, reason).Inc()
}

// RecordMessageSent records a commit event sent to a backend.
func (r *Recorder) RecordMessageSent(backend, view string) {
	r.messagesSent.WithLabelValues(backend, view).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// SetMountedViews sets the mounted views gauge.
func (r *Recorder) SetMountedViews(n int) {
	r.mountedViews.Set(float64(n))
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordFetch(string, string, float64) {}
func (Nop) RecordCommit(string, string, string) {}
func (Nop) RecordSkip(string, string, string) {}
func (Nop) RecordMessageSent(string, string) {}
func (Nop) RecordError(string) {}
func (Nop) RecordLatency(string, float64) {}
func (Nop) SetMountedViews(int) {}
