package transport

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codelaboratoryltd/hotroute/internal/cluster"
)

// Metrics holds Prometheus metrics for connection pools.
type Metrics struct {
	// ConnectionsOpened counts connections opened and validated per server.
	ConnectionsOpened *prometheus.CounterVec

	// ConnectionsClosed counts closed connections per server and reason.
	ConnectionsClosed *prometheus.CounterVec

	// AcquireWait measures how long callers waited for a connection.
	AcquireWait prometheus.Histogram

	// PoolExhausted counts acquires that timed out.
	PoolExhausted *prometheus.CounterVec

	// Pools is the number of pools held by the registry.
	Pools prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics for connection pools.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hotroute",
			Subsystem: "pool",
			Name:      "connections_opened_total",
			Help:      "Total number of connections opened.",
		}, []string{"server"}),
		ConnectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hotroute",
			Subsystem: "pool",
			Name:      "connections_closed_total",
			Help:      "Total number of connections closed.",
		}, []string{"server", "reason"}),
		AcquireWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hotroute",
			Subsystem: "pool",
			Name:      "acquire_wait_seconds",
			Help:      "Time spent waiting to acquire a connection.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		PoolExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hotroute",
			Subsystem: "pool",
			Name:      "exhausted_total",
			Help:      "Total number of acquires that timed out on an exhausted pool.",
		}, []string{"server"}),
		Pools: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hotroute",
			Subsystem: "pool",
			Name:      "pools",
			Help:      "Number of connection pools held by the registry.",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.ConnectionsOpened,
			m.ConnectionsClosed,
			m.AcquireWait,
			m.PoolExhausted,
			m.Pools,
		)
	}

	return m
}

func (m *Metrics) opened(server cluster.Server) {
	if m == nil {
		return
	}
	m.ConnectionsOpened.WithLabelValues(server.String()).Inc()
}

func (m *Metrics) closed(server cluster.Server, reason string) {
	if m == nil {
		return
	}
	m.ConnectionsClosed.WithLabelValues(server.String(), reason).Inc()
}

func (m *Metrics) waited(d time.Duration) {
	if m == nil {
		return
	}
	m.AcquireWait.Observe(d.Seconds())
}

func (m *Metrics) exhausted(server cluster.Server) {
	if m == nil {
		return
	}
	m.PoolExhausted.WithLabelValues(server.String()).Inc()
}

func (m *Metrics) pools(n int) {
	if m == nil {
		return
	}
	m.Pools.Set(float64(n))
}
