package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// RouterMetrics instruments withdrawal stack and governance operations.
type RouterMetrics struct {
	// Counts of router operations, partitioned by outcome.
	operations *prometheus.CounterVec

	// Current withdrawal stack length of each vault touched since startup.
	stackLengths *prometheus.GaugeVec
}

// NewDefaultRouterMetrics creates Prometheus metric instrumentation for
// router operations.
func NewDefaultRouterMetrics(pkg string) RouterMetrics {
	return RouterMetrics{
		operations: registerOnce(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_operations", pkg),
				Help: "How many router operations were attempted, partitioned by operation and outcome.",
			},
			[]string{"operation", "outcome"}, // Labels.
		)),
		stackLengths: registerOnce(prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: fmt.Sprintf("%s_withdrawal_stack_length", pkg),
				Help: "Number of strategies in a vault's withdrawal stack.",
			},
			[]string{"vault"}, // Labels.
		)),
	}
}

// Operations returns the counter for the given operation and outcome.
// Outcome is "success" or the kind of the rejection.
func (m *RouterMetrics) Operations(operation, outcome string) prometheus.Counter {
	return m.operations.WithLabelValues(operation, outcome)
}

// StackLength returns the length gauge of the given vault's stack.
func (m *RouterMetrics) StackLength(vault string) prometheus.Gauge {
	return m.stackLengths.WithLabelValues(vault)
}
