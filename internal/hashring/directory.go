// Package hashring resolves keys to the cluster members that own them.
//
// A Directory is an immutable snapshot of the consistent hash ring. Topology
// or hash function changes never mutate a Directory; they build a new one
// which the caller publishes atomically.
package hashring

import (
	"fmt"
	"sort"

	"github.com/codelaboratoryltd/hotroute/internal/cluster"
)

// Directory is a read-only view of server ring positions plus the hashing
// parameters in force when it was built. It is safe for concurrent readers.
type Directory struct {
	spec    HashSpec
	fn      HashFunction
	entries []Entry
	servers []cluster.Server
	hashed  bool
}

// Build creates a Directory from cluster supplied hash codes. The order of
// servers breaks ties between equal ring positions.
func Build(servers []ServerHash, numOwners int, version HashVersion, hashSpace int) (*Directory, error) {
	spec := HashSpec{Version: version, HashSpace: hashSpace, NumOwners: numOwners}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("cannot build directory: %w", err)
	}
	fn, err := HashFunctionFor(version)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(servers))
	for _, sh := range servers {
		entries = append(entries, Entry{
			Server:   sh.Server,
			Position: normalize(sh.HashCode, hashSpace),
		})
	}
	return newHashedDirectory(spec, fn, entries), nil
}

// NewStaticDirectory returns a Directory that knows the servers but has no
// hash information yet. OwnersOf always returns an empty list.
func NewStaticDirectory(servers []cluster.Server) *Directory {
	return &Directory{servers: cluster.Dedup(servers)}
}

func newHashedDirectory(spec HashSpec, fn HashFunction, entries []Entry) *Directory {
	// Stable sort keeps insertion order for equal positions.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Position < entries[j].Position
	})

	servers := make([]cluster.Server, 0, len(entries))
	for _, e := range entries {
		servers = append(servers, e.Server)
	}

	return &Directory{
		spec:    spec,
		fn:      fn,
		entries: entries,
		servers: cluster.Dedup(servers),
		hashed:  true,
	}
}

// Restrict returns a new Directory with the same hash parameters that only
// keeps ring entries of servers in the given set. A Directory without hash
// information is replaced by a static one listing servers.
func (d *Directory) Restrict(servers []cluster.Server) *Directory {
	if !d.hashed {
		return NewStaticDirectory(servers)
	}

	keep := cluster.Set(servers)
	entries := make([]Entry, 0, len(d.entries))
	for _, e := range d.entries {
		if _, ok := keep[e.Server]; ok {
			entries = append(entries, e)
		}
	}
	return newHashedDirectory(d.spec, d.fn, entries)
}

// OwnersOf returns the ordered owners of key: the primary first, then the
// replicas walking forward around the ring. The list is empty when the
// Directory has no hash information or no servers.
func (d *Directory) OwnersOf(key []byte) []cluster.Server {
	if !d.hashed || len(d.entries) == 0 {
		return []cluster.Server{}
	}
	return d.OwnersAt(Position(d.fn, key, d.spec.HashSpace))
}

// OwnersAt returns the ordered owners of the given ring position.
func (d *Directory) OwnersAt(position int) []cluster.Server {
	if len(d.entries) == 0 {
		return []cluster.Server{}
	}

	want := min(d.spec.NumOwners, len(d.servers))
	owners := make([]cluster.Server, 0, want)

	start := sort.Search(len(d.entries), func(i int) bool {
		return d.entries[i].Position >= position
	})
	// Past the last server the ring wraps to the first one.
	if start == len(d.entries) {
		start = 0
	}

	seen := make(map[cluster.Server]struct{}, want)
	for i := 0; i < len(d.entries) && len(owners) < want; i++ {
		s := d.entries[(start+i)%len(d.entries)].Server
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		owners = append(owners, s)
	}
	return owners
}

// PositionOf returns the ring position of key, or -1 without hash information.
func (d *Directory) PositionOf(key []byte) int {
	if !d.hashed {
		return -1
	}
	return Position(d.fn, key, d.spec.HashSpace)
}

// Spec returns the hashing parameters of the Directory.
func (d *Directory) Spec() HashSpec {
	return d.spec
}

// HasHashInfo reports whether the Directory can route by key.
func (d *Directory) HasHashInfo() bool {
	return d.hashed
}

// Servers returns the distinct servers of the Directory in ring order.
func (d *Directory) Servers() []cluster.Server {
	ret := make([]cluster.Server, len(d.servers))
	copy(ret, d.servers)
	return ret
}

// Entries returns a copy of the ring entries sorted by position.
func (d *Directory) Entries() []Entry {
	ret := make([]Entry, len(d.entries))
	copy(ret, d.entries)
	return ret
}

// Len returns the number of ring entries.
func (d *Directory) Len() int {
	return len(d.entries)
}
