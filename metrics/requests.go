package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Labels to use for partitioning requests.
	requestLabels = []string{"endpoint", "status"}

	// Labels to use for partitioning request latencies.
	requestLatencyLabels = []string{"endpoint"}
)

// Default service metrics for requests.
type RequestMetrics struct {
	// Counts of requests made to each service endpoint.
	requestCounts *prometheus.CounterVec

	// Latencies of serving incoming requests.
	requestLatencies *prometheus.HistogramVec
}

// NewDefaultRequestMetrics creates Prometheus metric instrumentation for
// basic metrics common to serving requests. Default metrics include:
//
// 1. Counts of service endpoints hit.
// 2. Latencies for requests.
func NewDefaultRequestMetrics(pkg string) RequestMetrics {
	return RequestMetrics{
		requestCounts: registerOnce(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_requests", pkg),
				Help: "How many service requests were made, partitioned by request endpoint and status.",
			},
			requestLabels,
		)),
		requestLatencies: registerOnce(prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: fmt.Sprintf("%s_request_latencies", pkg),
				Help: "How long requests take to process, partitioned by request endpoint.",
			},
			requestLatencyLabels,
		)),
	}
}

// RequestCounter returns the counter for the given endpoint and status.
func (m *RequestMetrics) RequestCounter(endpoint, status string) prometheus.Counter {
	return m.requestCounts.WithLabelValues(endpoint, status)
}

// RequestLatencies returns the latency observer for the given endpoint.
func (m *RequestMetrics) RequestLatencies(endpoint string) prometheus.Observer {
	return m.requestLatencies.WithLabelValues(endpoint)
}
