package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/codelaboratoryltd/hotroute/internal/hashring"
	"github.com/codelaboratoryltd/hotroute/internal/routing"
	"github.com/codelaboratoryltd/hotroute/internal/topology"
	"github.com/codelaboratoryltd/hotroute/internal/validation"
)

// maxTopologyBody bounds PUT /topology request bodies.
const maxTopologyBody = 1 << 20

// getTopology returns the current directory as a topology document.
func (s *Server) getTopology(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, topology.FromDirectory(s.router.Directory()))
}

// putTopology applies a topology document. YAML bodies are accepted when
// the Content-Type says so; anything else is read as JSON.
func (s *Server) putTopology(w http.ResponseWriter, r *http.Request) {
	format := topology.FormatJSON
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		format = topology.FormatYAML
	}

	doc, err := topology.Decode(http.MaxBytesReader(w, r.Body, maxTopologyBody), format)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var updater topology.Updater = s.router
	if s.hub != nil {
		updater = topology.NewNotifier(s.router, s.hub)
	}

	if err := topology.Apply(doc, updater); err != nil {
		respondError(w, updateStatus(err), err.Error())
		return
	}

	log.Infof("Topology updated via API: %d server(s), %d ring entries", len(doc.Servers), len(doc.Ring))
	respondJSON(w, http.StatusOK, topology.FromDirectory(s.router.Directory()))
}

// updateStatus maps a rejected update to an HTTP status.
func updateStatus(err error) int {
	switch {
	case errors.Is(err, routing.ErrNotStarted), errors.Is(err, routing.ErrFactoryDestroyed):
		return http.StatusServiceUnavailable
	case errors.Is(err, hashring.ErrInvalidHashSpace),
		errors.Is(err, hashring.ErrInvalidNumOwners),
		errors.Is(err, hashring.ErrUnsupportedHashVersion):
		return http.StatusUnprocessableEntity
	default:
		var verr *validation.ValidationError
		if errors.As(err, &verr) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
}
