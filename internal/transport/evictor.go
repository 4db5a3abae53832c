package transport

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultEvictionInterval is the default interval between eviction runs.
	DefaultEvictionInterval = time.Minute
)

// PoolSource lists the pools the evictor should visit.
// This matches Registry but is defined here for testability.
type PoolSource interface {
	Pools() []*Pool
}

// EvictorConfig holds configuration for the idle connection evictor.
type EvictorConfig struct {
	// Interval is how often idle connections are inspected.
	Interval time.Duration

	// MinEvictableIdle is how long a connection may sit idle before it is closed.
	MinEvictableIdle time.Duration

	// Validate closes idle connections that fail their liveness handshake.
	Validate bool
}

// EvictorConfigFrom derives the evictor configuration from a pool configuration.
func EvictorConfigFrom(cfg PoolConfig) EvictorConfig {
	interval := cfg.EvictionInterval
	if interval <= 0 {
		interval = DefaultEvictionInterval
	}
	return EvictorConfig{
		Interval:         interval,
		MinEvictableIdle: cfg.MinEvictableIdle,
		Validate:         cfg.TestOnBorrow,
	}
}

// EvictorMetrics holds Prometheus metrics for the evictor.
type EvictorMetrics struct {
	// EvictedTotal counts idle connections closed by the evictor.
	EvictedTotal prometheus.Counter

	// RunDuration measures how long each eviction run takes.
	RunDuration prometheus.Histogram
}

// NewEvictorMetrics creates and registers Prometheus metrics for the evictor.
func NewEvictorMetrics(registerer prometheus.Registerer) *EvictorMetrics {
	m := &EvictorMetrics{
		EvictedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotroute",
			Subsystem: "evictor",
			Name:      "evicted_total",
			Help:      "Total number of idle connections closed by the evictor.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hotroute",
			Subsystem: "evictor",
			Name:      "run_duration_seconds",
			Help:      "Duration of each eviction run.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if registerer != nil {
		registerer.MustRegister(m.EvictedTotal, m.RunDuration)
	}
	return m
}

// Evictor periodically closes stale idle connections.
type Evictor struct {
	mu sync.Mutex

	source  PoolSource
	config  EvictorConfig
	metrics *EvictorMetrics

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// EvictorOption is a functional option for configuring the Evictor.
type EvictorOption func(*Evictor)

// WithEvictorConfig sets the evictor configuration.
func WithEvictorConfig(cfg EvictorConfig) EvictorOption {
	return func(e *Evictor) {
		e.config = cfg
	}
}

// WithEvictorMetrics sets the Prometheus metrics for the evictor.
func WithEvictorMetrics(m *EvictorMetrics) EvictorOption {
	return func(e *Evictor) {
		e.metrics = m
	}
}

// NewEvictor creates an evictor visiting the pools of source.
func NewEvictor(source PoolSource, opts ...EvictorOption) *Evictor {
	e := &Evictor{
		source: source,
		config: EvictorConfigFrom(DefaultPoolConfig()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start runs the evictor in a background goroutine until Stop is called or
// ctx is canceled.
func (e *Evictor) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})

	go e.run(ctx, e.stopCh, e.doneCh)
}

// Stop stops the evictor and waits for an in-progress run to finish.
func (e *Evictor) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	done := e.doneCh
	e.mu.Unlock()

	<-done
}

// IsRunning returns whether the evictor is currently running.
func (e *Evictor) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Evictor) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.mu.Lock()
			e.running = false
			e.mu.Unlock()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			e.EvictNow(ctx)
		}
	}
}

// EvictNow runs a single eviction pass and returns the number of
// connections closed.
func (e *Evictor) EvictNow(ctx context.Context) int {
	start := time.Now()
	evicted := 0
	for _, p := range e.source.Pools() {
		evicted += p.EvictIdle(ctx, e.config.MinEvictableIdle, e.config.Validate)
	}

	if e.metrics != nil {
		e.metrics.EvictedTotal.Add(float64(evicted))
		e.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}
	if evicted > 0 {
		log.Debugf("Evicted %d idle connection(s)", evicted)
	}
	return evicted
}
