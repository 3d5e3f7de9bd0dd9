// Package metrics exposes Prometheus collectors for the HTTP surface and the
// signing pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "signing_gateway"

// Registry holds the gateway's collectors
var Registry = prometheus.NewRegistry()

var (
	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"method", "path"},
	)

	signings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signing",
			Name:      "operations_total",
			Help:      "Signing pipeline runs by route variant and outcome.",
		},
		[]string{"variant", "outcome"},
	)

	signingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "signing",
			Name:      "duration_seconds",
			Help:      "Duration of signing pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"variant"},
	)

	identityResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "resolutions_total",
			Help:      "Identity resolutions by source and outcome.",
		},
		[]string{"source", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		signings,
		signingDuration,
		identityResolutions,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler serves the registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished request. path should already be a route
// pattern, not a raw URL.
func ObserveHTTP(method, path string, status int, d time.Duration) {
	httpRequests.WithLabelValues(strings.ToUpper(method), path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(strings.ToUpper(method), path).Observe(d.Seconds())
}

// TrackInFlight increments the in-flight gauge and returns its decrement
func TrackInFlight() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

// RecordSigning records a signing pipeline run. outcome is "ok" or an error class.
func RecordSigning(variant, outcome string, d time.Duration) {
	if variant == "" {
		variant = "unknown"
	}
	signings.WithLabelValues(variant, outcome).Inc()
	signingDuration.WithLabelValues(variant).Observe(d.Seconds())
}

// RecordIdentity records an identity resolution. source is "session" or "key_share".
func RecordIdentity(source string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	identityResolutions.WithLabelValues(source, outcome).Inc()
}
