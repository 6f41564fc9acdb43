package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Default service metrics for storage operations.
type StorageMetrics struct {
	// Name of the storage backend, e.g. "postgres" or "kvstore".
	backend string

	// Counts of database operations
	databaseOperations *prometheus.CounterVec

	// Latencies of database operations.
	databaseLatencies *prometheus.HistogramVec
}

// NewDefaultStorageMetrics creates Prometheus metric instrumentation
// for basic metrics common to storage accesses.
func NewDefaultStorageMetrics(pkg string, backend string) StorageMetrics {
	return StorageMetrics{
		backend: backend,
		databaseOperations: registerOnce(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_db_operations", pkg),
				Help: "How many database operations occur, partitioned by backend, operation and status.",
			},
			[]string{"backend", "operation", "status"}, // Labels.
		)),
		databaseLatencies: registerOnce(prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: fmt.Sprintf("%s_db_latencies", pkg),
				Help: "How long database operations take, partitioned by backend and operation.",
			},
			[]string{"backend", "operation"}, // Labels.
		)),
	}
}

// DatabaseOperations returns the counter for the database operation.
// The provided params are used as labels.
func (m *StorageMetrics) DatabaseOperations(operation, status string) prometheus.Counter {
	return m.databaseOperations.WithLabelValues(m.backend, operation, status)
}

// DatabaseLatencies returns a new latency timer for the provided
// database operation.
func (m *StorageMetrics) DatabaseLatencies(operation string) *prometheus.Timer {
	return prometheus.NewTimer(m.databaseLatencies.WithLabelValues(m.backend, operation))
}

// Observe records the outcome of a finished database operation.
func (m *StorageMetrics) Observe(operation string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.DatabaseOperations(operation, status).Inc()
}
