package hashring

import (
	"fmt"

	"github.com/codelaboratoryltd/hotroute/internal/cluster"
)

// HashVersion identifies a hash function variant pushed by the cluster.
type HashVersion uint8

const (
	// HashVersionFNV is 32-bit FNV-1a.
	HashVersionFNV HashVersion = 1
	// HashVersionMurmur3 is MurmurHash3 x86_32 with a zero seed.
	HashVersionMurmur3 HashVersion = 2
	// HashVersionXXHash is xxHash64 folded to 32 bits.
	HashVersionXXHash HashVersion = 3
)

func (v HashVersion) String() string {
	switch v {
	case HashVersionFNV:
		return "fnv1a-32"
	case HashVersionMurmur3:
		return "murmur3-32"
	case HashVersionXXHash:
		return "xxhash-64/32"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(v))
	}
}

// HashSpec is the set of hashing parameters a Directory was built with.
type HashSpec struct {
	Version   HashVersion `json:"version" yaml:"version"`
	HashSpace int         `json:"hash_space" yaml:"hash_space"`
	NumOwners int         `json:"num_owners" yaml:"num_owners"`
}

// Validate checks the parameters can be used to build a ring.
func (s HashSpec) Validate() error {
	if s.HashSpace <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidHashSpace, s.HashSpace)
	}
	if s.NumOwners < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidNumOwners, s.NumOwners)
	}
	if _, err := HashFunctionFor(s.Version); err != nil {
		return err
	}
	return nil
}

// ServerHash pairs a server with the ring position precomputed by the cluster.
type ServerHash struct {
	Server   cluster.Server
	HashCode int
}

// Entry is a server placed on the ring.
type Entry struct {
	Server   cluster.Server `json:"server"`
	Position int            `json:"position"`
}
