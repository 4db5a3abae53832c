package transport

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/codelaboratoryltd/hotroute/internal/cluster"
)

// Conn is an open network connection to a cluster member. The transport
// layer only needs to validate and close it; reading and writing requests
// belongs to the protocol layer.
type Conn interface {
	io.Closer

	// Validate performs a lightweight liveness handshake.
	Validate(ctx context.Context) error
}

// Dialer opens connections to cluster members.
type Dialer interface {
	Dial(ctx context.Context, server cluster.Server) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, server cluster.Server) (Conn, error)

// Dial calls f(ctx, server).
func (f DialerFunc) Dial(ctx context.Context, server cluster.Server) (Conn, error) {
	return f(ctx, server)
}

// Transport is a pooled connection lent to a caller. It remembers the pool
// it came from so releasing it never needs a lookup.
type Transport struct {
	id        uuid.UUID
	conn      Conn
	pool      *Pool
	createdAt time.Time
	lastUsed  atomic.Int64
	broken    atomic.Bool
}

func newTransport(conn Conn, pool *Pool) *Transport {
	t := &Transport{
		id:        uuid.New(),
		conn:      conn,
		pool:      pool,
		createdAt: time.Now(),
	}
	t.touch()
	return t
}

// ID uniquely identifies the underlying connection.
func (t *Transport) ID() uuid.UUID {
	return t.id
}

// Server returns the cluster member the connection is open to.
func (t *Transport) Server() cluster.Server {
	return t.pool.server
}

// Conn returns the network connection. Connections opened by TCPDialer
// also implement net.Conn.
func (t *Transport) Conn() Conn {
	return t.conn
}

// Pool returns the pool that owns the connection.
func (t *Transport) Pool() *Pool {
	return t.pool
}

// MarkBroken flags the connection so it is closed instead of reused on release.
func (t *Transport) MarkBroken() {
	t.broken.Store(true)
}

// Broken reports whether MarkBroken was called.
func (t *Transport) Broken() bool {
	return t.broken.Load()
}

// CreatedAt returns when the connection was opened.
func (t *Transport) CreatedAt() time.Time {
	return t.createdAt
}

// LastUsed returns when the connection was last lent or returned.
func (t *Transport) LastUsed() time.Time {
	return time.Unix(0, t.lastUsed.Load())
}

func (t *Transport) touch() {
	t.lastUsed.Store(time.Now().UnixNano())
}

func (t *Transport) String() string {
	return t.pool.server.String() + "/" + t.id.String()
}
