/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsLabelMethod       = "method"
	metricsLabelRoutePattern = "route_pattern"
	metricsLabelStatusCode   = "status_code"
)

// DefaultHTTPRequestDurationBuckets is default buckets for durations of served HTTP requests.
var DefaultHTTPRequestDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// RoutePatternGetterFunc returns the route pattern of the request (e.g. "/api/v1/limiter/status").
type RoutePatternGetterFunc func(r *http.Request) string

// HTTPRequestMetricsCollectorOpts configures HTTPRequestMetricsCollector.
type HTTPRequestMetricsCollectorOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
}

// HTTPRequestMetricsCollector holds metrics of incoming HTTP requests.
// Throttled counts responses telling the caller to slow down (429 and 503).
type HTTPRequestMetricsCollector struct {
	Durations *prometheus.HistogramVec
	InFlight  *prometheus.GaugeVec
	Throttled *prometheus.CounterVec
}

// NewHTTPRequestMetricsCollector creates a collector with default options.
func NewHTTPRequestMetricsCollector() *HTTPRequestMetricsCollector {
	return NewHTTPRequestMetricsCollectorWithOpts(HTTPRequestMetricsCollectorOpts{})
}

// NewHTTPRequestMetricsCollectorWithOpts creates a collector with the given options.
func NewHTTPRequestMetricsCollectorWithOpts(opts HTTPRequestMetricsCollectorOpts) *HTTPRequestMetricsCollector {
	buckets := opts.DurationBuckets
	if buckets == nil {
		buckets = DefaultHTTPRequestDurationBuckets
	}
	return &HTTPRequestMetricsCollector{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "http_request_duration_seconds",
			Help:        "Durations of served HTTP requests.",
			Buckets:     buckets,
			ConstLabels: opts.ConstLabels,
		}, []string{metricsLabelMethod, metricsLabelRoutePattern, metricsLabelStatusCode}),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests being served.",
			ConstLabels: opts.ConstLabels,
		}, []string{metricsLabelMethod}),
		Throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "http_requests_throttled_total",
			Help:        "Number of HTTP requests answered with 429 or 503.",
			ConstLabels: opts.ConstLabels,
		}, []string{metricsLabelRoutePattern, metricsLabelStatusCode}),
	}
}

// MustRegister registers all metrics in the default Prometheus registry and panics on error.
func (c *HTTPRequestMetricsCollector) MustRegister() {
	prometheus.MustRegister(c.Durations, c.InFlight, c.Throttled)
}

// Unregister removes all metrics from the default Prometheus registry.
func (c *HTTPRequestMetricsCollector) Unregister() {
	prometheus.Unregister(c.Throttled)
	prometheus.Unregister(c.InFlight)
	prometheus.Unregister(c.Durations)
}

func (c *HTTPRequestMetricsCollector) observe(method, routePattern string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	c.Durations.WithLabelValues(method, routePattern, code).Observe(elapsed.Seconds())
	if status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable {
		c.Throttled.WithLabelValues(routePattern, code).Inc()
	}
}

// HTTPRequestMetricsOpts configures HTTPRequestMetrics middleware.
type HTTPRequestMetricsOpts struct {
	ExcludedEndpoints []string
}

// HTTPRequestMetrics is a middleware that collects Prometheus metrics of incoming HTTP requests.
func HTTPRequestMetrics(
	collector *HTTPRequestMetricsCollector, getRoutePattern RoutePatternGetterFunc,
) func(next http.Handler) http.Handler {
	return HTTPRequestMetricsWithOpts(collector, getRoutePattern, HTTPRequestMetricsOpts{})
}

// HTTPRequestMetricsWithOpts is HTTPRequestMetrics with options.
// Requests to the excluded endpoints are passed through without being measured.
func HTTPRequestMetricsWithOpts(
	collector *HTTPRequestMetricsCollector, getRoutePattern RoutePatternGetterFunc, opts HTTPRequestMetricsOpts,
) func(next http.Handler) http.Handler {
	if getRoutePattern == nil {
		panic("function for getting route pattern cannot be nil")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if isExcluded(r.URL.Path, opts.ExcludedEndpoints) {
				next.ServeHTTP(rw, r)
				return
			}

			started := GetRequestStartTimeFromContext(r.Context())
			if started.IsZero() {
				started = time.Now()
				r = r.WithContext(NewContextWithRequestStartTime(r.Context(), started))
			}

			inFlight := collector.InFlight.WithLabelValues(r.Method)
			inFlight.Inc()
			defer inFlight.Dec()

			wrw := chimw.NewWrapResponseWriter(rw, r.ProtoMajor)
			defer func() {
				if p := recover(); p != nil {
					if p != http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
						collector.observe(r.Method, getRoutePattern(r), http.StatusInternalServerError, time.Since(started))
					}
					panic(p)
				}
				status := wrw.Status()
				if status == 0 {
					status = http.StatusOK
				}
				collector.observe(r.Method, getRoutePattern(r), status, time.Since(started))
			}()

			next.ServeHTTP(wrw, r)
		})
	}
}
