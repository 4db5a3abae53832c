// Package api exposes the routing state over HTTP for operators.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"

	"github.com/codelaboratoryltd/hotroute/internal/hashring"
	"github.com/codelaboratoryltd/hotroute/internal/routing"
	"github.com/codelaboratoryltd/hotroute/internal/topology"
	"github.com/codelaboratoryltd/hotroute/internal/transport"
)

var log = logging.Logger("hotroute-api")

// Router is the routing state the API reads and updates.
// routing.TransportFactory implements it.
type Router interface {
	topology.Updater

	State() routing.State
	Directory() *hashring.Directory
	Stats() []transport.PoolStats
}

// Server provides the HTTP API for hotroute.
type Server struct {
	router Router
	hub    *topology.Hub
}

// NewServer creates a new API server.
func NewServer(router Router) *Server {
	return &Server{router: router}
}

// SetHub enables topology event streaming. Updates pushed through the API
// are published to hub.
func (s *Server) SetHub(hub *topology.Hub) {
	s.hub = hub
}

// RegisterRoutes registers all API routes on the given router.
func (s *Server) RegisterRoutes(r *mux.Router) {
	// Health endpoints
	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.HandleFunc("/ready", s.readyHandler).Methods("GET")

	// API v1 endpoints
	api := r.PathPrefix("/api/v1").Subrouter()

	// Topology
	api.HandleFunc("/topology", s.getTopology).Methods("GET")
	api.HandleFunc("/topology", s.putTopology).Methods("PUT")
	api.HandleFunc("/topology/watch", s.watchHandler).Methods("GET")

	// Routing
	api.HandleFunc("/owners/{key}", s.getOwners).Methods("GET")
	api.HandleFunc("/pools", s.listPools).Methods("GET")
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Debugf("Failed to write response: %v", err)
		}
	}
}

// respondError writes an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// healthHandler returns health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// readyResponse is the JSON body of the readiness endpoint.
type readyResponse struct {
	Ready    bool   `json:"ready"`
	State    string `json:"state"`
	Servers  int    `json:"servers"`
	HashInfo bool   `json:"hash_info"`
}

// readyHandler reports ready while the router is running.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	state := s.router.State()
	dir := s.router.Directory()

	resp := readyResponse{
		Ready:    state == routing.StateRunning,
		State:    state.String(),
		Servers:  len(dir.Servers()),
		HashInfo: dir.HasHashInfo(),
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}
