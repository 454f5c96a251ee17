package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registers decouples metric creation from the concrete prometheus registry
// so tests can hand in a fresh one per daemon.
type Registers interface {
	prometheus.Registerer
	Gatherer() prometheus.Gatherer
}

// promRegistry wraps *prometheus.Registry.
type promRegistry struct {
	registry *prometheus.Registry
}

// NewPromRegistry wraps registry. A nil registry gets a fresh one with the
// process and Go runtime collectors registered.
func NewPromRegistry(registry *prometheus.Registry) Registers {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
	}
	return &promRegistry{registry: registry}
}

// MustRegister implements prometheus.Registerer.
func (p *promRegistry) MustRegister(collectors ...prometheus.Collector) {
	for _, c := range collectors {
		if err := p.registry.Register(c); err != nil {
			panic(err)
		}
	}
}

// Register implements prometheus.Registerer.
func (p *promRegistry) Register(collector prometheus.Collector) error {
	return p.registry.Register(collector)
}

// Unregister implements prometheus.Registerer.
func (p *promRegistry) Unregister(collector prometheus.Collector) bool {
	return p.registry.Unregister(collector)
}

// Gatherer exposes the registry for the /metrics handler.
func (p *promRegistry) Gatherer() prometheus.Gatherer {
	return p.registry
}
