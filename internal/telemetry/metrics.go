// Package telemetry holds the process-wide tracing setup and Prometheus
// collectors.
package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundflow_transitions_total",
		Help: "Lifecycle transitions attempted, by outcome kind",
	}, []string{"transition", "outcome"})

	transitionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fundflow_transition_duration_seconds",
		Help:    "Lifecycle transition latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"transition"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundflow_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fundflow_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "route"})
)

// ObserveTransition records one lifecycle transition attempt. outcome is
// "ok" or the error kind.
func ObserveTransition(transition, outcome string, elapsed time.Duration) {
	transitionsTotal.WithLabelValues(transition, outcome).Inc()
	transitionLatency.WithLabelValues(transition).Observe(elapsed.Seconds())
}

// ObserveHTTP records one served HTTP request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
