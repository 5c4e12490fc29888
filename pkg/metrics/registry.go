package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry pairs the service metrics with a dedicated Prometheus registry
type Registry struct {
	registry *prometheus.Registry
	metrics  *SafeTimeMetrics
}

// NewRegistry creates a registry with the default namespace
func NewRegistry() *Registry {
	return NewRegistryWithConfig("safetime", "")
}

// NewRegistryWithConfig creates a registry with a custom namespace and
// subsystem
func NewRegistryWithConfig(namespace, subsystem string) *Registry {
	return &Registry{
		registry: prometheus.NewRegistry(),
		metrics:  NewSafeTimeMetricsWithConfig(namespace, subsystem),
	}
}

// Register registers the service metrics
func (r *Registry) Register() error {
	return r.registry.Register(r.metrics)
}

// MustRegister registers the service metrics and panics on error
func (r *Registry) MustRegister() {
	if err := r.Register(); err != nil {
		panic(err)
	}
}

// GetRegistry returns the underlying Prometheus registry
func (r *Registry) GetRegistry() *prometheus.Registry {
	return r.registry
}

// GetMetrics returns the metrics instance
func (r *Registry) GetMetrics() *SafeTimeMetrics {
	return r.metrics
}
