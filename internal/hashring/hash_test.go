package hashring

import (
	"errors"
	"fmt"
	"testing"
)

func TestHashFunctionFor(t *testing.T) {
	tests := []struct {
		name    string
		version HashVersion
		key     string
		want    uint32
	}{
		{"fnv empty", HashVersionFNV, "", 0x811c9dc5},
		{"fnv single byte", HashVersionFNV, "a", 0xe40c292c},
		{"murmur3 empty", HashVersionMurmur3, "", 0},
		{"murmur3 hello", HashVersionMurmur3, "hello", 0x248bfa47},
		{"murmur3 four bytes", HashVersionMurmur3, "user", 0x95943d0d},
		{"murmur3 test vector", HashVersionMurmur3, "test", 0xba6bd213},
		{"murmur3 eight bytes", HashVersionMurmur3, "testtest", 0x2b23b1f3},
		{"murmur3 eight byte key", HashVersionMurmur3, "user:001", 0x6c18a7df},
		{"xxhash empty", HashVersionXXHash, "", 0xbe9e32ae},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := HashFunctionFor(tt.version)
			if err != nil {
				t.Fatalf("HashFunctionFor(%d) error: %v", tt.version, err)
			}
			if fn.Version() != tt.version {
				t.Errorf("Version() = %v, want %v", fn.Version(), tt.version)
			}
			if got := fn.Hash([]byte(tt.key)); got != tt.want {
				t.Errorf("Hash(%q) = %#x, want %#x", tt.key, got, tt.want)
			}
		})
	}
}

func TestHashFunctionFor_Unsupported(t *testing.T) {
	for _, v := range []HashVersion{0, 4, 255} {
		_, err := HashFunctionFor(v)
		if !errors.Is(err, ErrUnsupportedHashVersion) {
			t.Errorf("HashFunctionFor(%d) error = %v, want ErrUnsupportedHashVersion", v, err)
		}
		var unsupported *UnsupportedHashVersionError
		if !errors.As(err, &unsupported) || unsupported.Version != v {
			t.Errorf("HashFunctionFor(%d) should return UnsupportedHashVersionError", v)
		}
	}
}

func TestHash_Consistency(t *testing.T) {
	for _, v := range []HashVersion{HashVersionFNV, HashVersionMurmur3, HashVersionXXHash} {
		fn, _ := HashFunctionFor(v)
		for i := 0; i < 100; i++ {
			key := []byte(fmt.Sprintf("key-%d", i))
			if fn.Hash(key) != fn.Hash(key) {
				t.Fatalf("%v: hash of %q not deterministic", v, key)
			}
		}
	}
}

func TestPosition(t *testing.T) {
	fn, _ := HashFunctionFor(HashVersionMurmur3)
	for i := 0; i < 1000; i++ {
		pos := Position(fn, []byte(fmt.Sprintf("k%d", i)), 97)
		if pos < 0 || pos >= 97 {
			t.Fatalf("Position out of range: %d", pos)
		}
	}
	if got := Position(fn, []byte("k"), 0); got != 0 {
		t.Errorf("Position with zero hash space = %d, want 0", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		code, space, want int
	}{
		{10, 100, 10},
		{100, 100, 0},
		{250, 100, 50},
		{-1, 100, 99},
		{-200, 100, 0},
	}
	for _, tt := range tests {
		if got := normalize(tt.code, tt.space); got != tt.want {
			t.Errorf("normalize(%d, %d) = %d, want %d", tt.code, tt.space, got, tt.want)
		}
	}
}

func TestHashVersionString(t *testing.T) {
	if HashVersionMurmur3.String() != "murmur3-32" {
		t.Errorf("unexpected name %q", HashVersionMurmur3.String())
	}
	if HashVersion(9).String() != "unknown(9)" {
		t.Errorf("unexpected name %q", HashVersion(9).String())
	}
}
