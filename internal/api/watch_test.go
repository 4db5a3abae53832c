package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/codelaboratoryltd/hotroute/internal/topology"
)

func TestWatchHandler_Disabled(t *testing.T) {
	server, _ := setupTestServer(t)
	router := setupTestRouter(server)

	w := doRequest(router, "GET", "/api/v1/topology/watch", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("watch handler without hub returned status %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestWatchHandler_UnknownKind(t *testing.T) {
	server, _ := setupTestServer(t)
	server.SetHub(topology.NewHub(10))
	router := setupTestRouter(server)

	w := doRequest(router, "GET", "/api/v1/topology/watch?kind=nodes", "", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestWatchHandler_StreamsEvents(t *testing.T) {
	server, _ := setupTestServer(t)
	hub := topology.NewHub(100)
	server.SetHub(hub)

	ts := httptest.NewServer(setupTestRouter(server))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/v1/topology/watch?kind=hash", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	readUntilLine(t, scanner, ": connected")

	// Filtered out by kind.
	hub.Publish(topology.Event{Kind: topology.KindServers})
	hub.Publish(topology.Event{Kind: topology.KindHash, Servers: []string{"10.0.0.1:11222"}})

	var eventLines []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" && len(eventLines) > 0 {
			break
		}
		if line != "" {
			eventLines = append(eventLines, line)
		}
	}

	var hasID, hasEvent, hasData bool
	for _, line := range eventLines {
		switch {
		case line == "id: 2":
			hasID = true
		case line == "event: hash":
			hasEvent = true
		case strings.HasPrefix(line, "data: "):
			hasData = true
			if !strings.Contains(line, `"kind":"hash"`) {
				t.Errorf("data should contain kind:hash, got %s", line)
			}
		}
	}
	if !hasID || !hasEvent || !hasData {
		t.Errorf("incomplete SSE event: %v", eventLines)
	}
}

func TestWatchHandler_ReconnectionReplay(t *testing.T) {
	server, _ := setupTestServer(t)
	hub := topology.NewHub(100)
	server.SetHub(hub)

	hub.Publish(topology.Event{Kind: topology.KindServers})
	hub.Publish(topology.Event{Kind: topology.KindHash})

	ts := httptest.NewServer(setupTestRouter(server))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/v1/topology/watch", nil)
	req.Header.Set("Last-Event-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)

	var ids []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "id: ") {
			ids = append(ids, strings.TrimPrefix(line, "id: "))
		}
		if line == ": connected" {
			break
		}
	}

	if len(ids) != 1 || ids[0] != "2" {
		t.Errorf("replayed IDs = %v, want [2]", ids)
	}
}

// readUntilLine reads lines from the scanner until it finds the target line.
func readUntilLine(t *testing.T, scanner *bufio.Scanner, target string) {
	t.Helper()
	for scanner.Scan() {
		if scanner.Text() == target {
			return
		}
	}
	t.Fatalf("Did not find line %q in stream", target)
}
