/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Window names used in metrics and stats.
const (
	WindowMinute = "minute"
	WindowDay    = "day"
)

// MetricsCollector receives the limiter state changes.
type MetricsCollector interface {
	IncEvents(eventType EventType)
	SetQueueLength(n int)
	SetBackoff(active bool, multiplier float64)
	SetWindowUsage(window string, requests, tokens int)
	ObserveQueueWait(d time.Duration)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// QueueWaitBuckets is a list of buckets for the queue wait histogram (in seconds).
	QueueWaitBuckets []float64

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// DefaultQueueWaitBuckets is the default buckets for the queue wait histogram.
var DefaultQueueWaitBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600}

// PrometheusMetrics is MetricsCollector backed by Prometheus.
type PrometheusMetrics struct {
	Events         *prometheus.CounterVec
	QueueLength    prometheus.Gauge
	BackoffActive  prometheus.Gauge
	BackoffFactor  prometheus.Gauge
	WindowRequests *prometheus.GaugeVec
	WindowTokens   *prometheus.GaugeVec
	QueueWait      prometheus.Histogram
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new instance of PrometheusMetrics.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	buckets := opts.QueueWaitBuckets
	if buckets == nil {
		buckets = DefaultQueueWaitBuckets
	}
	return &PrometheusMetrics{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "limiter_events_total",
			Help:        "Number of limiter events by type.",
			ConstLabels: opts.ConstLabels,
		}, []string{"type"}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "limiter_queue_length",
			Help:        "Number of requests waiting in the limiter queue.",
			ConstLabels: opts.ConstLabels,
		}),
		BackoffActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "limiter_backoff_active",
			Help:        "1 if the limiter is in backoff, 0 otherwise.",
			ConstLabels: opts.ConstLabels,
		}),
		BackoffFactor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "limiter_backoff_multiplier",
			Help:        "Current multiplier of the limiter backoff.",
			ConstLabels: opts.ConstLabels,
		}),
		WindowRequests: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "limiter_window_requests",
			Help:        "Number of requests charged in the current quota window.",
			ConstLabels: opts.ConstLabels,
		}, []string{"window"}),
		WindowTokens: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "limiter_window_tokens",
			Help:        "Number of tokens charged in the current quota window.",
			ConstLabels: opts.ConstLabels,
		}, []string{"window"}),
		QueueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "limiter_queue_wait_seconds",
			Help:        "A histogram of the time requests spent in the limiter queue.",
			Buckets:     buckets,
			ConstLabels: opts.ConstLabels,
		}),
	}
}

func (pm *PrometheusMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		pm.Events, pm.QueueLength, pm.BackoffActive, pm.BackoffFactor, pm.WindowRequests, pm.WindowTokens, pm.QueueWait,
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.collectors()...)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	for _, c := range pm.collectors() {
		prometheus.Unregister(c)
	}
}

// IncEvents implements MetricsCollector.
func (pm *PrometheusMetrics) IncEvents(eventType EventType) {
	pm.Events.WithLabelValues(string(eventType)).Inc()
}

// SetQueueLength implements MetricsCollector.
func (pm *PrometheusMetrics) SetQueueLength(n int) {
	pm.QueueLength.Set(float64(n))
}

// SetBackoff implements MetricsCollector.
func (pm *PrometheusMetrics) SetBackoff(active bool, multiplier float64) {
	v := 0.0
	if active {
		v = 1
	}
	pm.BackoffActive.Set(v)
	pm.BackoffFactor.Set(multiplier)
}

// SetWindowUsage implements MetricsCollector.
func (pm *PrometheusMetrics) SetWindowUsage(window string, requests, tokens int) {
	pm.WindowRequests.WithLabelValues(window).Set(float64(requests))
	pm.WindowTokens.WithLabelValues(window).Set(float64(tokens))
}

// ObserveQueueWait implements MetricsCollector.
func (pm *PrometheusMetrics) ObserveQueueWait(d time.Duration) {
	pm.QueueWait.Observe(d.Seconds())
}

type disabledMetrics struct{}

func (disabledMetrics) IncEvents(EventType)             {}
func (disabledMetrics) SetQueueLength(int)              {}
func (disabledMetrics) SetBackoff(bool, float64)        {}
func (disabledMetrics) SetWindowUsage(string, int, int) {}
func (disabledMetrics) ObserveQueueWait(time.Duration)  {}
