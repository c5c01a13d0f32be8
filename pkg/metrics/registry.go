// Package metrics owns the process-global Prometheus registry and the
// counters, gauges, and histograms the agent's tasks publish to it.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registryOnce sync.Once
	registry     *prometheus.Registry
	enabled      bool
)

// InitRegistry sets up the process-global registry. Safe to call more than
// once; only the first call has effect. Pass enable=false to run with
// metrics fully disabled, in which case GetRegistry returns nil and every
// recorder becomes a no-op.
func InitRegistry(enable bool) {
	registryOnce.Do(func() {
		enabled = enable
		if !enable {
			return
		}
		registry = prometheus.NewRegistry()
	})
}

// IsEnabled reports whether metrics collection is active.
func IsEnabled() bool {
	return enabled
}

// GetRegistry returns the process-global registry, or nil if metrics are
// disabled or InitRegistry has not been called.
func GetRegistry() *prometheus.Registry {
	return registry
}
