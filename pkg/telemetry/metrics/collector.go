package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns the Prometheus registry and all metric families.
type Collector struct {
	registry *prometheus.Registry

	// Billing tracks charge outcomes and coin volumes.
	Billing *BillingMetrics
}

// NewCollector creates a collector with all metric families registered.
// A nil registry creates a fresh one.
func NewCollector(namespace, subsystem string, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &Collector{
		registry: registry,
		Billing:  NewBillingMetrics(namespace, subsystem, registry),
	}
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
