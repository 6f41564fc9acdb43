package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Registers the collector with Prometheus. If an identical collector is already
// registered, returns the existing collector, otherwise returns the provided collector.
// Panics if the collector cannot be registered.
//
// Several routers (e.g. in tests) may ask for the same metrics; they then share
// the collectors.
func registerOnce[C prometheus.Collector](collector C) C {
	if err := prometheus.Register(collector); err != nil {
		are := prometheus.AlreadyRegisteredError{}
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}
