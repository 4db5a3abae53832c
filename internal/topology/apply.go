package topology

import (
	"fmt"

	"github.com/codelaboratoryltd/hotroute/internal/cluster"
	"github.com/codelaboratoryltd/hotroute/internal/hashring"
)

// Updater receives topology changes. routing.TransportFactory implements it.
type Updater interface {
	UpdateServers(servers []cluster.Server) error
	UpdateHashFunction(serverHashCodes []hashring.ServerHash, numOwners int, version hashring.HashVersion, hashSpace int) error
}

// Apply pushes doc to u: the server list first, then the hash function.
// Updates of one kind are never reordered, so the last document applied wins.
// Hash parameters are checked before anything is pushed, so a document the
// hash update would reject leaves the server list untouched too.
func Apply(doc *Document, u Updater) error {
	servers, err := doc.ServerList()
	if err != nil {
		return err
	}

	var hashes []hashring.ServerHash
	spec := hashring.HashSpec{
		Version:   hashring.HashVersion(doc.HashVersion),
		HashSpace: doc.HashSpace,
		NumOwners: doc.NumOwners,
	}
	if doc.HasHashInfo() {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("update hash function: %w", err)
		}
		if hashes, err = doc.ServerHashes(); err != nil {
			return err
		}
	}

	if len(servers) > 0 {
		if err := u.UpdateServers(servers); err != nil {
			return fmt.Errorf("update servers: %w", err)
		}
	}

	if !doc.HasHashInfo() {
		return nil
	}
	if err := u.UpdateHashFunction(hashes, spec.NumOwners, spec.Version, spec.HashSpace); err != nil {
		return fmt.Errorf("update hash function: %w", err)
	}
	return nil
}
