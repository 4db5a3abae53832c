package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/codelaboratoryltd/hotroute/internal/topology"
)

// watchHandler streams accepted topology updates via Server-Sent Events (SSE).
// Query parameters:
//   - kind: "servers" or "hash" (default: both)
//
// Headers:
//   - Last-Event-ID: resume from this event ID (for reconnection catch-up)
func (s *Server) watchHandler(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "topology watching not enabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	kind := r.URL.Query().Get("kind")
	switch kind {
	case "", topology.KindServers, topology.KindHash:
	default:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown kind %q", kind))
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if lastID := r.Header.Get("Last-Event-ID"); lastID != "" {
		afterID, err := strconv.ParseUint(lastID, 10, 64)
		if err == nil {
			for _, event := range s.hub.Replay(afterID, kind) {
				if err := writeSSEEvent(w, event); err != nil {
					return
				}
			}
			flusher.Flush()
		}
	}

	sub := s.hub.Subscribe(kind)
	defer s.hub.Unsubscribe(sub)

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func writeSSEEvent(w http.ResponseWriter, event topology.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.ID, event.Kind, data)
	return err
}
