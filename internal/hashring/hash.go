package hashring

import (
	"hash/fnv"

	"github.com/cespare/xxhash/v2"
	"github.com/twmb/murmur3"
)

// HashFunction maps key bytes onto an unsigned 32-bit value.
// Implementations are pure and safe for concurrent use.
type HashFunction interface {
	Version() HashVersion
	Hash(key []byte) uint32
}

type fnvHash struct{}

func (fnvHash) Version() HashVersion { return HashVersionFNV }

func (fnvHash) Hash(key []byte) uint32 {
	h := fnv.New32a()
	h.Write(key)
	return h.Sum32()
}

type murmur3Hash struct{}

func (murmur3Hash) Version() HashVersion { return HashVersionMurmur3 }

func (murmur3Hash) Hash(key []byte) uint32 {
	return murmur3.Sum32(key)
}

type xxHash struct{}

func (xxHash) Version() HashVersion { return HashVersionXXHash }

// Hash folds the 64-bit digest so both halves contribute to the position.
func (xxHash) Hash(key []byte) uint32 {
	sum := xxhash.Sum64(key)
	return uint32(sum>>32) ^ uint32(sum)
}

// HashFunctionFor returns the hash function registered for version.
// Several versions coexist so clients keep routing during rolling upgrades.
func HashFunctionFor(version HashVersion) (HashFunction, error) {
	switch version {
	case HashVersionFNV:
		return fnvHash{}, nil
	case HashVersionMurmur3:
		return murmur3Hash{}, nil
	case HashVersionXXHash:
		return xxHash{}, nil
	default:
		return nil, &UnsupportedHashVersionError{Version: version}
	}
}

// Position returns the ring position of key in [0, hashSpace).
func Position(fn HashFunction, key []byte, hashSpace int) int {
	if hashSpace <= 0 {
		return 0
	}
	return int(uint64(fn.Hash(key)) % uint64(hashSpace))
}

// normalize folds a cluster supplied hash code into [0, hashSpace).
func normalize(hashCode, hashSpace int) int {
	pos := hashCode % hashSpace
	if pos < 0 {
		pos += hashSpace
	}
	return pos
}
