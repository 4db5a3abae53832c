package routing

import (
	"sync/atomic"

	"github.com/codelaboratoryltd/hotroute/internal/cluster"
)

// RoundRobin spreads key-less requests over servers. The cursor is shared
// by all callers; the server list is supplied on every call so topology
// changes need no coordination.
type RoundRobin struct {
	next atomic.Uint64
}

// Next returns servers rotated so that the element after the previous
// choice comes first. Callers try the result in order.
func (b *RoundRobin) Next(servers []cluster.Server) []cluster.Server {
	n := len(servers)
	if n == 0 {
		return nil
	}
	start := int((b.next.Add(1) - 1) % uint64(n))
	ret := make([]cluster.Server, 0, n)
	ret = append(ret, servers[start:]...)
	ret = append(ret, servers[:start]...)
	return ret
}
