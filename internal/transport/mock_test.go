package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/codelaboratoryltd/hotroute/internal/cluster"
)

var errValidation = errors.New("handshake failed")

// mockConn implements Conn for testing.
type mockConn struct {
	dialer *mockDialer
	server cluster.Server
	closed atomic.Bool
	fail   atomic.Bool
	// hang makes Validate block until ctx is done.
	hang   atomic.Bool
}

func (c *mockConn) Validate(ctx context.Context) error {
	if c.hang.Load() {
		<-ctx.Done()
		return ctx.Err()
	}
	if c.fail.Load() {
		return errValidation
	}
	return nil
}

func (c *mockConn) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.dialer.connClosed()
	}
	return nil
}

// mockDialer implements Dialer for testing and tracks live connections.
type mockDialer struct {
	mu              sync.Mutex
	dialErr         error
	failValidations int
	unreachable     map[cluster.Server]bool
	dials           int
	live            int
	maxLive         int
	conns           []*mockConn
}

func newMockDialer() *mockDialer {
	return &mockDialer{unreachable: make(map[cluster.Server]bool)}
}

func (d *mockDialer) Dial(ctx context.Context, server cluster.Server) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	if d.unreachable[server] {
		return nil, errors.New("connection refused")
	}

	c := &mockConn{dialer: d, server: server}
	if d.failValidations > 0 {
		d.failValidations--
		c.fail.Store(true)
	}
	d.live++
	if d.live > d.maxLive {
		d.maxLive = d.live
	}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *mockDialer) connClosed() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live--
}

func (d *mockDialer) SetDialError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialErr = err
}

func (d *mockDialer) SetUnreachable(server cluster.Server, down bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unreachable[server] = down
}

func (d *mockDialer) FailNextValidations(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failValidations = n
}

func (d *mockDialer) Counts() (dials, live, maxLive int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials, d.live, d.maxLive
}
