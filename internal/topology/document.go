// Package topology reads cluster topology documents and pushes them to a
// router. A document carries the server list and, optionally, the hash
// parameters and precomputed ring positions the cluster assigned.
package topology

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"gopkg.in/yaml.v3"

	"github.com/codelaboratoryltd/hotroute/internal/cluster"
	"github.com/codelaboratoryltd/hotroute/internal/hashring"
	"github.com/codelaboratoryltd/hotroute/internal/validation"
)

var log = logging.Logger("hotroute-topology")

// Format is the encoding of a topology document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from a file extension. Anything that is
// not .json is read as YAML.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// RingEntry is the ring position of one server.
type RingEntry struct {
	Server   string `yaml:"server" json:"server"`
	Position int    `yaml:"position" json:"position"`
}

// Document describes the cluster as pushed by its members.
type Document struct {
	Servers     []string    `yaml:"servers" json:"servers"`
	HashVersion int         `yaml:"hash_version,omitempty" json:"hash_version,omitempty"`
	HashSpace   int         `yaml:"hash_space,omitempty" json:"hash_space,omitempty"`
	NumOwners   int         `yaml:"num_owners,omitempty" json:"num_owners,omitempty"`
	Ring        []RingEntry `yaml:"ring,omitempty" json:"ring,omitempty"`
}

// Decode reads a document from r.
func Decode(r io.Reader, format Format) (*Document, error) {
	var doc Document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode topology: %w", err)
		}
	case FormatYAML, "":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && err != io.EOF {
			return nil, fmt.Errorf("decode topology: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown topology format %q", format)
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Load reads a document from a file.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open topology: %w", err)
	}
	defer f.Close()
	return Decode(f, FormatFromPath(path))
}

// Encode writes doc to w.
func Encode(w io.Writer, doc *Document, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown topology format %q", format)
	}
}

// FromDirectory describes a directory snapshot as a document.
func FromDirectory(dir *hashring.Directory) *Document {
	doc := &Document{Servers: make([]string, 0, len(dir.Servers()))}
	for _, s := range dir.Servers() {
		doc.Servers = append(doc.Servers, s.String())
	}
	if !dir.HasHashInfo() {
		return doc
	}

	spec := dir.Spec()
	doc.HashVersion = int(spec.Version)
	doc.HashSpace = spec.HashSpace
	doc.NumOwners = spec.NumOwners
	for _, e := range dir.Entries() {
		doc.Ring = append(doc.Ring, RingEntry{Server: e.Server.String(), Position: e.Position})
	}
	return doc
}

// HasHashInfo reports whether the document carries ring positions.
func (d *Document) HasHashInfo() bool {
	return len(d.Ring) > 0
}

// Validate checks addresses and, when present, the hash parameters.
func (d *Document) Validate() error {
	if _, err := d.ServerList(); err != nil {
		return err
	}
	if !d.HasHashInfo() {
		return nil
	}
	if err := validation.ValidateHashVersion(d.HashVersion); err != nil {
		return err
	}
	if err := validation.ValidateHashSpace(d.HashSpace); err != nil {
		return err
	}
	if err := validation.ValidateNumOwners(d.NumOwners); err != nil {
		return err
	}
	_, err := d.ServerHashes()
	return err
}

// ServerList parses the server addresses. Duplicates are dropped.
func (d *Document) ServerList() ([]cluster.Server, error) {
	servers := make([]cluster.Server, 0, len(d.Servers))
	for _, addr := range d.Servers {
		s, err := validation.ValidateServerAddress(addr)
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	return cluster.Dedup(servers), nil
}

// ServerHashes parses the ring in document order, which is also the
// tie-break order for equal positions.
func (d *Document) ServerHashes() ([]hashring.ServerHash, error) {
	hashes := make([]hashring.ServerHash, 0, len(d.Ring))
	for _, e := range d.Ring {
		s, err := validation.ValidateServerAddress(e.Server)
		if err != nil {
			return nil, fmt.Errorf("ring entry %q: %w", e.Server, err)
		}
		hashes = append(hashes, hashring.ServerHash{Server: s, HashCode: e.Position})
	}
	return hashes, nil
}
