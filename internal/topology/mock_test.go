package topology

import (
	"errors"
	"sync"

	"github.com/codelaboratoryltd/hotroute/internal/cluster"
	"github.com/codelaboratoryltd/hotroute/internal/hashring"
)

type hashCall struct {
	hashes    []hashring.ServerHash
	numOwners int
	version   hashring.HashVersion
	hashSpace int
}

// mockUpdater records updates in the order they arrive.
type mockUpdater struct {
	mu         sync.Mutex
	calls      []string
	servers    [][]cluster.Server
	hashes     []hashCall
	serversErr error
	hashErr    error
}

func (m *mockUpdater) UpdateServers(servers []cluster.Server) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, KindServers)
	if m.serversErr != nil {
		return m.serversErr
	}
	m.servers = append(m.servers, servers)
	return nil
}

func (m *mockUpdater) UpdateHashFunction(serverHashCodes []hashring.ServerHash, numOwners int, version hashring.HashVersion, hashSpace int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, KindHash)
	if m.hashErr != nil {
		return m.hashErr
	}
	m.hashes = append(m.hashes, hashCall{serverHashCodes, numOwners, version, hashSpace})
	return nil
}

func (m *mockUpdater) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

var errRejected = errors.New("rejected")
