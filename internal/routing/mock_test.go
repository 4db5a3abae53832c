package routing

import (
	"context"
	"errors"
	"sync"

	"github.com/codelaboratoryltd/hotroute/internal/cluster"
	"github.com/codelaboratoryltd/hotroute/internal/transport"
)

var (
	serverA = cluster.NewServer("10.0.0.1", 11222)
	serverB = cluster.NewServer("10.0.0.2", 11222)
	serverC = cluster.NewServer("10.0.0.3", 11222)
)

type mockConn struct {
	mu     sync.Mutex
	closed bool
}

func (c *mockConn) Validate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	return nil
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// mockDialer implements transport.Dialer and can make servers unreachable.
type mockDialer struct {
	mu          sync.Mutex
	unreachable map[cluster.Server]bool
	dials       map[cluster.Server]int
}

func newMockDialer() *mockDialer {
	return &mockDialer{
		unreachable: make(map[cluster.Server]bool),
		dials:       make(map[cluster.Server]int),
	}
}

func (d *mockDialer) Dial(ctx context.Context, server cluster.Server) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials[server]++
	if d.unreachable[server] {
		return nil, errors.New("connection refused")
	}
	return &mockConn{}, nil
}

func (d *mockDialer) SetUnreachable(server cluster.Server, unreachable bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unreachable[server] = unreachable
}

func (d *mockDialer) Dials(server cluster.Server) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[server]
}
