// Package metrics exposes the framework's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the framework-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "trellis",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trellis",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	pipelineStageFaults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "pipeline",
			Name:      "stage_faults_total",
			Help:      "Total number of faults intercepted by the error-handler stage.",
		},
		[]string{"module"},
	)

	remotingCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "remoting",
			Name:      "calls_total",
			Help:      "Total number of remoting calls dispatched.",
		},
		[]string{"api", "status"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		pipelineStageFaults,
		remotingCalls,
	)
}

// Handler returns an HTTP handler serving the framework registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// IncrementInFlight records the start of an HTTP request.
func IncrementInFlight() { httpInFlight.Inc() }

// DecrementInFlight records the end of an HTTP request.
func DecrementInFlight() { httpInFlight.Dec() }

// RecordHTTPRequest records a completed HTTP request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordStageFault records a pipeline fault attributed to a module.
func RecordStageFault(module string) {
	pipelineStageFaults.WithLabelValues(module).Inc()
}

// RecordRemotingCall records a remoting dispatch outcome.
func RecordRemotingCall(api, status string) {
	remotingCalls.WithLabelValues(api, status).Inc()
}
