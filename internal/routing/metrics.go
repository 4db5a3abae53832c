package routing

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Labels for topology updates.
const (
	updateServers = "servers"
	updateHash    = "hash"
)

// Labels for fallbacks.
const (
	fallbackOwner    = "owner"
	fallbackBalancer = "balancer"
	fallbackNoHash   = "no_hash_info"
)

// Metrics holds Prometheus metrics for request routing.
type Metrics struct {
	// Fallbacks counts requests not served by the primary owner, by reason.
	Fallbacks *prometheus.CounterVec

	// TopologyUpdates counts accepted and rejected topology updates.
	TopologyUpdates *prometheus.CounterVec

	// DirectoryServers is the number of servers in the current directory.
	DirectoryServers prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics for routing.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hotroute",
			Subsystem: "routing",
			Name:      "fallbacks_total",
			Help:      "Total number of keyed requests served by a server other than the primary owner.",
		}, []string{"reason"}),
		TopologyUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hotroute",
			Subsystem: "routing",
			Name:      "topology_updates_total",
			Help:      "Total number of topology updates by kind and result.",
		}, []string{"kind", "result"}),
		DirectoryServers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hotroute",
			Subsystem: "routing",
			Name:      "directory_servers",
			Help:      "Number of servers in the current hash directory.",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(m.Fallbacks, m.TopologyUpdates, m.DirectoryServers)
	}
	return m
}

func (m *Metrics) fallback(reason string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) update(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.TopologyUpdates.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) directory(n int) {
	if m == nil {
		return
	}
	m.DirectoryServers.Set(float64(n))
}
