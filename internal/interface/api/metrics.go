package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the store-level Prometheus instruments. A fresh set is
// created per server so tests can run side by side without duplicate
// registration.
type Metrics struct {
	depositsTotal    prometheus.Counter
	resolutionsTotal *prometheus.CounterVec
	retrievalsTotal  prometheus.Counter
	pendingGauge     prometheus.Gauge
	approvedGauge    prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers the handoff instruments.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		depositsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "handoff_deposits_total",
			Help: "Total number of deposited batches",
		}),
		resolutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "handoff_resolutions_total",
			Help: "Total number of resolutions by provenance",
		}, []string{"method"}),
		retrievalsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "handoff_retrievals_total",
			Help: "Total number of consuming retrievals",
		}),
		pendingGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "handoff_pending_executions",
			Help: "Executions currently awaiting review",
		}),
		approvedGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "handoff_stored_approvals",
			Help: "Approvals awaiting retrieval",
		}),
		registry: registry,
	}
}
