// Package routing hands out pooled connections to the cluster member that
// owns a key.
//
// A TransportFactory keeps the current hash directory in an atomic pointer
// and one connection pool per known server. Readers never take a lock:
// topology updates build a new immutable directory and swap it in, so a
// request sees either the old or the new view, never a mix.
package routing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codelaboratoryltd/hotroute/internal/cluster"
	"github.com/codelaboratoryltd/hotroute/internal/hashring"
	"github.com/codelaboratoryltd/hotroute/internal/transport"
)

var log = logging.Logger("hotroute-routing")

// State is the lifecycle state of a TransportFactory.
type State int32

const (
	StateNotStarted State = iota
	StateRunning
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// TransportFactory routes requests to pooled connections.
type TransportFactory struct {
	dialer         transport.Dialer
	metrics        *Metrics
	poolMetrics    *transport.Metrics
	evictorMetrics *transport.EvictorMetrics

	// mu serializes lifecycle changes and topology writers.
	mu       sync.Mutex
	state    atomic.Int32
	cfg      Config
	registry *transport.Registry
	evictor  *transport.Evictor
	cancel   context.CancelFunc

	directory atomic.Pointer[hashring.Directory]
	balancer  RoundRobin
}

// Option is a functional option for configuring the TransportFactory.
type Option func(*TransportFactory)

// WithDialer sets the dialer used to open connections. The default is a
// TCPDialer using the pool connect timeout.
func WithDialer(d transport.Dialer) Option {
	return func(f *TransportFactory) {
		f.dialer = d
	}
}

// WithMetrics sets the routing and pool metrics. Either may be nil.
func WithMetrics(m *Metrics, pool *transport.Metrics) Option {
	return func(f *TransportFactory) {
		f.metrics = m
		f.poolMetrics = pool
	}
}

// WithRegisterer creates every factory metric and registers it with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(f *TransportFactory) {
		f.metrics = NewMetrics(reg)
		f.poolMetrics = transport.NewMetrics(reg)
		f.evictorMetrics = transport.NewEvictorMetrics(reg)
	}
}

// New creates a factory in the NotStarted state.
func New(opts ...Option) *TransportFactory {
	f := &TransportFactory{}
	for _, opt := range opts {
		opt(f)
	}
	f.directory.Store(hashring.NewStaticDirectory(nil))
	return f
}

// Start builds the pools for servers and begins serving connections. The
// directory has no hash information until UpdateHashFunction is called, so
// keyed requests are balanced until then.
func (f *TransportFactory) Start(cfg Config, servers []cluster.Server) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.State() {
	case StateRunning:
		return ErrAlreadyStarted
	case StateDestroyed:
		return ErrFactoryDestroyed
	}

	servers = cluster.Dedup(servers)
	if len(servers) == 0 {
		log.Warnf("Starting transport factory without servers")
	}

	dialer := f.dialer
	if dialer == nil {
		dialer = &transport.TCPDialer{Timeout: cfg.Pool.ConnectTimeout}
	}

	f.cfg = cfg
	f.registry = transport.NewRegistry(dialer, cfg.Pool, f.poolMetrics)
	f.registry.Reconcile(servers)
	f.directory.Store(hashring.NewStaticDirectory(servers))
	f.metrics.directory(len(servers))

	if cfg.Pool.EvictionInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		f.cancel = cancel
		f.evictor = transport.NewEvictor(f.registry,
			transport.WithEvictorConfig(transport.EvictorConfigFrom(cfg.Pool)),
			transport.WithEvictorMetrics(f.evictorMetrics),
		)
		f.evictor.Start(ctx)
	}

	f.state.Store(int32(StateRunning))
	log.Infof("Transport factory started with %d server(s)", len(servers))
	return nil
}

// State returns the lifecycle state.
func (f *TransportFactory) State() State {
	return State(f.state.Load())
}

// Config returns the configuration the factory was started with.
func (f *TransportFactory) Config() Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

// Directory returns the current directory snapshot. It is never nil.
func (f *TransportFactory) Directory() *hashring.Directory {
	return f.directory.Load()
}

// running returns the registry when the factory can serve requests.
func (f *TransportFactory) running() (*transport.Registry, error) {
	switch f.State() {
	case StateNotStarted:
		return nil, ErrNotStarted
	case StateDestroyed:
		return nil, ErrFactoryDestroyed
	}
	return f.registry, nil
}

// GetTransport returns a connection to any server, chosen round-robin.
// Unreachable servers are skipped; every server is tried at most once.
func (f *TransportFactory) GetTransport(ctx context.Context) (*transport.Transport, error) {
	reg, err := f.running()
	if err != nil {
		return nil, err
	}
	return f.acquireAny(ctx, reg, f.balancer.Next(reg.Servers()))
}

// GetTransportForKey returns a connection to the primary owner of key. When
// the owner cannot be reached the remaining owners are tried according to
// the fallback policy, then any other server. Without hash information the
// request is balanced like GetTransport.
func (f *TransportFactory) GetTransportForKey(ctx context.Context, key []byte) (*transport.Transport, error) {
	reg, err := f.running()
	if err != nil {
		return nil, err
	}

	owners := f.directory.Load().OwnersOf(key)
	if len(owners) == 0 {
		f.metrics.fallback(fallbackNoHash)
		return f.acquireAny(ctx, reg, f.balancer.Next(reg.Servers()))
	}

	candidates := owners
	if f.cfg.Fallback == FallbackPrimaryOnly {
		candidates = owners[:1]
	}

	tried := make(map[cluster.Server]struct{}, len(candidates))
	var lastErr error
	for i, s := range candidates {
		tried[s] = struct{}{}
		pool, ok := reg.PoolFor(s)
		if !ok {
			continue
		}
		t, err := pool.Acquire(ctx)
		if err == nil {
			if i > 0 {
				f.metrics.fallback(fallbackOwner)
			}
			return t, nil
		}
		if !transport.IsRecoverable(err) {
			return nil, err
		}
		log.Warnf("Owner %s unavailable, trying next server: %v", s, err)
		lastErr = err
	}

	rest := make([]cluster.Server, 0)
	for _, s := range f.balancer.Next(reg.Servers()) {
		if _, ok := tried[s]; !ok {
			rest = append(rest, s)
		}
	}
	if len(rest) == 0 {
		return nil, f.exhausted(lastErr, len(tried))
	}

	f.metrics.fallback(fallbackBalancer)
	return f.acquireAny(ctx, reg, rest)
}

// acquireAny tries servers in order and returns the first connection
// obtained. Recoverable failures move on to the next server; any other
// failure is returned as is.
func (f *TransportFactory) acquireAny(ctx context.Context, reg *transport.Registry, servers []cluster.Server) (*transport.Transport, error) {
	var lastErr error
	for _, s := range servers {
		pool, ok := reg.PoolFor(s)
		if !ok {
			// Removed since the list was taken.
			continue
		}
		t, err := pool.Acquire(ctx)
		if err == nil {
			return t, nil
		}
		if !transport.IsRecoverable(err) {
			return nil, err
		}
		log.Debugf("Server %s unavailable: %v", s, err)
		lastErr = err
	}
	return nil, f.exhausted(lastErr, len(servers))
}

// exhausted builds the error returned once every candidate failed.
func (f *TransportFactory) exhausted(lastErr error, tried int) error {
	if f.State() == StateDestroyed {
		return ErrFactoryDestroyed
	}
	if lastErr == nil {
		return ErrNoServers
	}
	return fmt.Errorf("no server available after trying %d: %w", tried, lastErr)
}

// ReleaseTransport returns t to the pool it came from. A nil transport is
// logged and ignored.
func (f *TransportFactory) ReleaseTransport(t *transport.Transport) {
	if t == nil {
		log.Warnf("Ignoring release of nil transport")
		return
	}
	t.Pool().Release(t)
}

// UpdateServers replaces the set of known servers. Pools of new servers are
// created lazily, pools of removed servers are drained, and removed servers
// disappear from the directory immediately.
func (f *TransportFactory) UpdateServers(servers []cluster.Server) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	reg, err := f.running()
	if err != nil {
		return err
	}

	servers = cluster.Dedup(servers)
	next := f.directory.Load().Restrict(servers)
	f.directory.Store(next)
	f.metrics.directory(len(next.Servers()))

	result := reg.Reconcile(servers)
	f.metrics.update(updateServers, nil)
	log.Infof("Server list updated: %d server(s), %d added, %d removed",
		len(servers), len(result.Added), len(result.Removed))
	return nil
}

// UpdateHashFunction installs new hash information. The update is rejected
// as a whole when any parameter is invalid; the current directory then
// stays in place. Pools are not touched.
func (f *TransportFactory) UpdateHashFunction(serverHashCodes []hashring.ServerHash, numOwners int, version hashring.HashVersion, hashSpace int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.running(); err != nil {
		return err
	}

	dir, err := hashring.Build(serverHashCodes, numOwners, version, hashSpace)
	if err != nil {
		f.metrics.update(updateHash, err)
		log.Errorf("Rejected hash update (version %d, space %d, owners %d): %v",
			version, hashSpace, numOwners, err)
		return fmt.Errorf("rejected hash update: %w", err)
	}

	f.directory.Store(dir)
	f.metrics.update(updateHash, nil)
	f.metrics.directory(len(dir.Servers()))
	log.Infof("Hash function updated: %s, space %d, %d owner(s), %d ring entries",
		version, hashSpace, numOwners, dir.Len())
	return nil
}

// Stats returns the stats of every pool, or nil when not running.
func (f *TransportFactory) Stats() []transport.PoolStats {
	reg, err := f.running()
	if err != nil {
		return nil
	}
	return reg.Stats()
}

// Destroy closes every connection and stops the evictor. Further calls
// return ErrFactoryDestroyed. Destroy is idempotent.
func (f *TransportFactory) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev := f.State()
	if prev == StateDestroyed {
		return
	}
	f.state.Store(int32(StateDestroyed))

	if f.evictor != nil {
		f.evictor.Stop()
		f.cancel()
	}
	if f.registry != nil {
		f.registry.Close()
	}
	f.directory.Store(hashring.NewStaticDirectory(nil))
	f.metrics.directory(0)

	if prev == StateRunning {
		log.Infof("Transport factory destroyed")
	}
}
