package transport

import (
	"sync"
	"time"

	"github.com/codelaboratoryltd/hotroute/internal/cluster"
)

// ReconcileResult describes how a Reconcile changed the registry.
type ReconcileResult struct {
	Added   []cluster.Server
	Removed []cluster.Server
	Kept    []cluster.Server
}

// Changed reports whether any pool was added or removed.
func (r ReconcileResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// Registry owns one Pool per known server.
type Registry struct {
	dialer  Dialer
	cfg     PoolConfig
	metrics *Metrics

	mu       sync.RWMutex
	pools    map[cluster.Server]*Pool
	order    []cluster.Server
	retiring map[*Pool]struct{}
	closed   bool

	wg sync.WaitGroup
}

// NewRegistry creates an empty registry whose pools share dialer and cfg.
func NewRegistry(dialer Dialer, cfg PoolConfig, metrics *Metrics) *Registry {
	return &Registry{
		dialer:   dialer,
		cfg:      cfg,
		metrics:  metrics,
		pools:    make(map[cluster.Server]*Pool),
		retiring: make(map[*Pool]struct{}),
	}
}

// Reconcile makes the registry cover exactly servers. New servers get a lazy
// pool, removed servers have their pool drained and destroyed in the
// background, and pools of servers present on both sides are left alone.
func (r *Registry) Reconcile(servers []cluster.Server) ReconcileResult {
	servers = cluster.Dedup(servers)
	want := cluster.Set(servers)

	var result ReconcileResult
	var removed []*Pool

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return result
	}

	pools := make(map[cluster.Server]*Pool, len(servers))
	for _, s := range servers {
		if p, ok := r.pools[s]; ok {
			pools[s] = p
			result.Kept = append(result.Kept, s)
			continue
		}
		pools[s] = NewPool(s, r.dialer, r.cfg, r.metrics)
		result.Added = append(result.Added, s)
	}
	for _, s := range r.order {
		if _, ok := want[s]; ok {
			continue
		}
		p := r.pools[s]
		removed = append(removed, p)
		r.retiring[p] = struct{}{}
		result.Removed = append(result.Removed, s)
	}

	r.pools = pools
	r.order = servers
	r.wg.Add(len(removed))
	r.mu.Unlock()

	r.metrics.pools(len(servers))

	for _, p := range removed {
		// Drain outside the registry lock so pool locks are never nested in it.
		p.Drain()
		go r.retire(p)
	}

	if result.Changed() {
		log.Infof("Reconciled pools: %d added, %d removed, %d kept",
			len(result.Added), len(result.Removed), len(result.Kept))
	}
	return result
}

// retire destroys a drained pool, or forcibly after DrainTimeout.
func (r *Registry) retire(p *Pool) {
	defer r.wg.Done()

	var timeout <-chan time.Time
	if r.cfg.DrainTimeout > 0 {
		timer := time.NewTimer(r.cfg.DrainTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-p.Drained():
	case <-timeout:
		log.Warnf("Pool for %s not drained after %v, destroying", p.Server(), r.cfg.DrainTimeout)
	}
	p.Destroy()

	r.mu.Lock()
	delete(r.retiring, p)
	r.mu.Unlock()
}

// PoolFor returns the pool of server, if the server is known.
func (r *Registry) PoolFor(server cluster.Server) (*Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[server]
	return p, ok
}

// Servers returns the known servers in the order they were last reconciled.
func (r *Registry) Servers() []cluster.Server {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]cluster.Server, len(r.order))
	copy(ret, r.order)
	return ret
}

// Pools returns the pools of the known servers.
func (r *Registry) Pools() []*Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]*Pool, 0, len(r.order))
	for _, s := range r.order {
		ret = append(ret, r.pools[s])
	}
	return ret
}

// Stats returns the stats of every known pool.
func (r *Registry) Stats() []PoolStats {
	pools := r.Pools()
	ret := make([]PoolStats, 0, len(pools))
	for _, p := range pools {
		ret = append(ret, p.Stats())
	}
	return ret
}

// Close destroys every pool, including pools still draining, and waits for
// background retirement to finish. The registry is unusable afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	pools := make([]*Pool, 0, len(r.pools)+len(r.retiring))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	for p := range r.retiring {
		pools = append(pools, p)
	}
	r.pools = make(map[cluster.Server]*Pool)
	r.order = nil
	r.mu.Unlock()

	for _, p := range pools {
		p.Destroy()
	}
	r.wg.Wait()
	r.metrics.pools(0)
}
