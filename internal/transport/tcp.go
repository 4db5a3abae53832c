package transport

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/codelaboratoryltd/hotroute/internal/cluster"
)

// HandshakeFunc runs a liveness exchange on a freshly opened connection.
type HandshakeFunc func(ctx context.Context, conn net.Conn) error

// TCPDialer opens plain TCP connections.
type TCPDialer struct {
	Timeout   time.Duration
	KeepAlive time.Duration

	// Handshake validates connections. When nil a successfully dialed
	// connection is considered live.
	Handshake HandshakeFunc
}

// Dial implements Dialer.
func (d *TCPDialer) Dial(ctx context.Context, server cluster.Server) (Conn, error) {
	nd := net.Dialer{
		Timeout:   d.Timeout,
		KeepAlive: d.KeepAlive,
	}
	c, err := nd.DialContext(ctx, "tcp", server.String())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", server, err)
	}
	return &tcpConn{Conn: c, handshake: d.Handshake}, nil
}

type tcpConn struct {
	net.Conn
	handshake HandshakeFunc
	closed    atomic.Bool
}

func (c *tcpConn) Validate(ctx context.Context) error {
	if c.closed.Load() {
		return net.ErrClosed
	}
	if c.handshake == nil {
		return nil
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.Conn.SetDeadline(deadline); err != nil {
			return err
		}
		defer c.Conn.SetDeadline(time.Time{})
	}
	return c.handshake(ctx, c.Conn)
}

func (c *tcpConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.Conn.Close()
}
