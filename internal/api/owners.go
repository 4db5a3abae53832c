package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/codelaboratoryltd/hotroute/internal/transport"
	"github.com/codelaboratoryltd/hotroute/internal/validation"
)

// OwnersResponse lists the owners of a key, primary first.
type OwnersResponse struct {
	Key      string   `json:"key"`
	Position int      `json:"position"`
	HashInfo bool     `json:"hash_info"`
	Owners   []string `json:"owners"`
}

// getOwners resolves a key against the current directory.
func (s *Server) getOwners(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if err := validation.ValidateKey(key); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	dir := s.router.Directory()
	owners := dir.OwnersOf([]byte(key))

	resp := OwnersResponse{
		Key:      key,
		Position: dir.PositionOf([]byte(key)),
		HashInfo: dir.HasHashInfo(),
		Owners:   make([]string, 0, len(owners)),
	}
	for _, o := range owners {
		resp.Owners = append(resp.Owners, o.String())
	}
	respondJSON(w, http.StatusOK, resp)
}

// listPools returns the stats of every connection pool.
func (s *Server) listPools(w http.ResponseWriter, r *http.Request) {
	stats := s.router.Stats()
	if stats == nil {
		stats = []transport.PoolStats{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"pools": stats,
		"count": len(stats),
	})
}
