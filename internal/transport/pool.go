// Package transport manages pooled network connections to cache cluster members.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/codelaboratoryltd/hotroute/internal/cluster"
)

var log = logging.Logger("hotroute-transport")

const (
	// DefaultMaxActive is the default upper bound of open connections per server.
	DefaultMaxActive = 8

	// DefaultMaxWait is how long Acquire blocks on an exhausted pool.
	DefaultMaxWait = 5 * time.Second

	// DefaultConnectTimeout bounds a single dial attempt.
	DefaultConnectTimeout = 2 * time.Second

	// DefaultMaxOpenAttempts is how many times opening a connection is tried
	// before the server is reported unreachable.
	DefaultMaxOpenAttempts = 3

	// DefaultDrainTimeout is how long a removed pool may wait for borrowed
	// connections before it is destroyed.
	DefaultDrainTimeout = 30 * time.Second
)

// Reasons a connection is closed, used as metric labels.
const (
	closeBroken     = "broken"
	closeDrain      = "drain"
	closeDestroy    = "destroy"
	closeValidation = "validation"
	closeEvicted    = "evicted"
)

// PoolConfig configures a connection pool.
type PoolConfig struct {
	// MaxActive caps borrowed plus idle connections.
	MaxActive int `yaml:"max_active"`

	// MaxWait is how long Acquire waits on an exhausted pool. Zero or
	// negative waits until the context is done.
	MaxWait time.Duration `yaml:"max_wait"`

	// ConnectTimeout bounds each dial attempt.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// MaxOpenAttempts is the number of dial+validate attempts per open.
	MaxOpenAttempts int `yaml:"max_open_attempts"`

	// TestOnBorrow validates idle connections before lending them.
	TestOnBorrow bool `yaml:"test_on_borrow"`

	// MinEvictableIdle is the idle age after which the evictor closes a connection.
	MinEvictableIdle time.Duration `yaml:"min_evictable_idle"`

	// EvictionInterval is how often the evictor runs. Zero disables it.
	EvictionInterval time.Duration `yaml:"eviction_interval"`

	// DrainTimeout bounds how long a removed pool waits for borrowers.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// DefaultPoolConfig returns a PoolConfig with sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxActive:        DefaultMaxActive,
		MaxWait:          DefaultMaxWait,
		ConnectTimeout:   DefaultConnectTimeout,
		MaxOpenAttempts:  DefaultMaxOpenAttempts,
		MinEvictableIdle: 30 * time.Minute,
		DrainTimeout:     DefaultDrainTimeout,
	}
}

// PoolStats is a point in time view of a pool.
type PoolStats struct {
	Server    cluster.Server `json:"server"`
	Open      int            `json:"open"`
	Idle      int            `json:"idle"`
	Borrowed  int            `json:"borrowed"`
	MaxActive int            `json:"max_active"`
	Draining  bool           `json:"draining"`
}

// Pool is a bounded pool of connections to a single server.
//
// Every open connection, including one being dialed, holds a token in
// slots, so len(slots) never exceeds MaxActive. Idle connections wait in the
// idle channel; a caller that receives one owns it exclusively.
type Pool struct {
	server  cluster.Server
	dialer  Dialer
	cfg     PoolConfig
	metrics *Metrics

	slots   chan struct{}
	idle    chan *Transport
	closing chan struct{}
	drained chan struct{}

	mu        sync.Mutex
	borrowed  map[*Transport]struct{}
	draining  bool
	destroyed bool

	drainedOnce sync.Once
}

// NewPool creates a pool for server. No connection is opened until the
// first Acquire.
func NewPool(server cluster.Server, dialer Dialer, cfg PoolConfig, metrics *Metrics) *Pool {
	if cfg.MaxActive < 1 {
		cfg.MaxActive = 1
	}
	if cfg.MaxOpenAttempts < 1 {
		cfg.MaxOpenAttempts = 1
	}
	return &Pool{
		server:   server,
		dialer:   dialer,
		cfg:      cfg,
		metrics:  metrics,
		slots:    make(chan struct{}, cfg.MaxActive),
		idle:     make(chan *Transport, cfg.MaxActive),
		closing:  make(chan struct{}),
		drained:  make(chan struct{}),
		borrowed: make(map[*Transport]struct{}),
	}
}

// Server returns the server the pool connects to.
func (p *Pool) Server() cluster.Server {
	return p.server
}

// Acquire lends a connection. It prefers idle connections, opens a new one
// while below MaxActive and otherwise waits up to MaxWait for a release.
func (p *Pool) Acquire(ctx context.Context) (*Transport, error) {
	if p.isDraining() {
		return nil, ErrPoolClosed
	}

	start := time.Now()
	defer func() { p.metrics.waited(time.Since(start)) }()

	var timeout <-chan time.Time
	if p.cfg.MaxWait > 0 {
		timer := time.NewTimer(p.cfg.MaxWait)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		// Reuse before growing.
		select {
		case t := <-p.idle:
			if lent, err := p.borrowIdle(ctx, t); lent != nil || err != nil {
				return lent, err
			}
			continue
		default:
		}

		select {
		case t := <-p.idle:
			if lent, err := p.borrowIdle(ctx, t); lent != nil || err != nil {
				return lent, err
			}
		case p.slots <- struct{}{}:
			return p.open(ctx)
		case <-p.closing:
			return nil, ErrPoolClosed
		case <-timeout:
			p.metrics.exhausted(p.server)
			return nil, fmt.Errorf("%w: %s reached %d connections after %v",
				ErrPoolExhausted, p.server, p.cfg.MaxActive, p.cfg.MaxWait)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// borrowIdle lends an idle connection taken from the idle channel. It returns
// nil and no error when the connection failed validation and was discarded.
func (p *Pool) borrowIdle(ctx context.Context, t *Transport) (*Transport, error) {
	if p.cfg.TestOnBorrow {
		if err := p.validate(ctx, t.conn); err != nil {
			log.Debugf("Idle connection %s failed validation: %v", t, err)
			p.discard(t, closeValidation)
			return nil, nil
		}
	}

	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		p.discard(t, closeDrain)
		return nil, ErrPoolClosed
	}
	p.borrowed[t] = struct{}{}
	p.mu.Unlock()

	t.touch()
	return t, nil
}

// open dials and validates a new connection. The caller holds a slot, which
// is given back on failure.
func (p *Pool) open(ctx context.Context) (*Transport, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxOpenAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			p.releaseSlot()
			return nil, err
		}

		conn, err := p.dial(ctx)
		if err != nil {
			log.Debugf("Attempt %d to connect to %s failed: %v", attempt, p.server, err)
			lastErr = err
			continue
		}
		if err := p.validate(ctx, conn); err != nil {
			log.Debugf("Attempt %d to validate connection to %s failed: %v", attempt, p.server, err)
			conn.Close()
			lastErr = fmt.Errorf("validation failed: %w", err)
			continue
		}

		t := newTransport(conn, p)
		p.mu.Lock()
		if p.draining {
			p.mu.Unlock()
			conn.Close()
			p.releaseSlot()
			return nil, ErrPoolClosed
		}
		p.borrowed[t] = struct{}{}
		p.mu.Unlock()

		p.metrics.opened(p.server)
		log.Debugf("Opened connection %s", t)
		return t, nil
	}

	p.releaseSlot()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, &ServerUnreachableError{Server: p.server, Attempts: p.cfg.MaxOpenAttempts, Err: lastErr}
}

func (p *Pool) dial(ctx context.Context) (Conn, error) {
	if p.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ConnectTimeout)
		defer cancel()
	}
	return p.dialer.Dial(ctx, p.server)
}

// validate runs the liveness check of conn. It is always bounded, by
// ConnectTimeout or DefaultConnectTimeout when that is unset.
func (p *Pool) validate(ctx context.Context, conn Conn) error {
	timeout := p.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return conn.Validate(ctx)
}

// Release returns a borrowed connection. Broken connections and connections
// released to a draining pool are closed. Releasing a connection that is not
// currently borrowed is logged and ignored.
func (p *Pool) Release(t *Transport) {
	if t == nil {
		return
	}
	if t.pool != p {
		log.Warnf("Ignoring release of connection %s to pool %s", t, p.server)
		return
	}

	p.mu.Lock()
	if p.destroyed {
		// Destroy already closed every connection.
		p.mu.Unlock()
		return
	}
	if _, ok := p.borrowed[t]; !ok {
		p.mu.Unlock()
		log.Warnf("Ignoring release of connection %s that is not borrowed", t)
		return
	}
	delete(p.borrowed, t)

	if t.Broken() || p.draining {
		finished := p.draining && len(p.borrowed) == 0
		p.mu.Unlock()

		reason := closeBroken
		if !t.Broken() {
			reason = closeDrain
		}
		p.discard(t, reason)
		if finished {
			p.finishDrain()
		}
		return
	}

	t.touch()
	// Never blocks: idle holds at most MaxActive connections.
	p.idle <- t
	p.mu.Unlock()
}

// Drain stops lending connections. Borrowed connections can still be
// released; once none remain every idle connection is closed and Drained
// is signalled.
func (p *Pool) Drain() {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return
	}
	p.draining = true
	close(p.closing)
	finished := len(p.borrowed) == 0
	p.mu.Unlock()

	log.Infof("Draining pool for %s", p.server)
	if finished {
		p.finishDrain()
	}
}

// Drained is closed once a draining pool has no borrowed connections left.
func (p *Pool) Drained() <-chan struct{} {
	return p.drained
}

// Destroy closes every connection, idle or borrowed.
func (p *Pool) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	if !p.draining {
		p.draining = true
		close(p.closing)
	}
	borrowed := p.borrowed
	p.borrowed = make(map[*Transport]struct{})
	p.mu.Unlock()

	if len(borrowed) > 0 {
		log.Warnf("Destroying pool for %s with %d borrowed connection(s)", p.server, len(borrowed))
	}
	for t := range borrowed {
		t.MarkBroken()
		p.discard(t, closeDestroy)
	}
	p.finishDrain()
}

func (p *Pool) finishDrain() {
	for {
		select {
		case t := <-p.idle:
			p.discard(t, closeDrain)
		default:
			p.drainedOnce.Do(func() {
				close(p.drained)
				log.Debugf("Pool for %s drained", p.server)
			})
			return
		}
	}
}

// EvictIdle closes idle connections unused for at least minIdle and, when
// validate is set, idle connections failing validation. It returns the
// number of connections closed.
func (p *Pool) EvictIdle(ctx context.Context, minIdle time.Duration, validate bool) int {
	evicted := 0
	now := time.Now()

	for n := len(p.idle); n > 0; n-- {
		var t *Transport
		select {
		case t = <-p.idle:
		default:
			return evicted
		}

		expired := minIdle > 0 && now.Sub(t.LastUsed()) >= minIdle
		if !expired && validate {
			if err := p.validate(ctx, t.conn); err != nil {
				log.Debugf("Idle connection %s failed validation: %v", t, err)
				expired = true
			}
		}
		if expired {
			p.discard(t, closeEvicted)
			evicted++
			continue
		}

		p.mu.Lock()
		if p.draining {
			p.mu.Unlock()
			p.discard(t, closeDrain)
			continue
		}
		p.idle <- t
		p.mu.Unlock()
	}
	return evicted
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Server:    p.server,
		Open:      len(p.slots),
		Idle:      len(p.idle),
		Borrowed:  len(p.borrowed),
		MaxActive: p.cfg.MaxActive,
		Draining:  p.draining,
	}
}

func (p *Pool) isDraining() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.draining
}

func (p *Pool) discard(t *Transport, reason string) {
	if err := t.conn.Close(); err != nil {
		log.Debugf("Error closing connection %s: %v", t, err)
	}
	p.releaseSlot()
	p.metrics.closed(p.server, reason)
}

func (p *Pool) releaseSlot() {
	<-p.slots
}
