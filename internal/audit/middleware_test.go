package audit

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func decodeEvents(t *testing.T, buf *bytes.Buffer) []Event {
	t.Helper()
	var events []Event
	dec := json.NewDecoder(buf)
	for dec.More() {
		var e Event
		if err := dec.Decode(&e); err != nil {
			t.Fatalf("decode: %v", err)
		}
		events = append(events, e)
	}
	return events
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		status   int
		wantType EventType
		logged   bool
	}{
		{"read not logged", http.MethodGet, TopologyPath, http.StatusOK, "", false},
		{"topology update", http.MethodPut, TopologyPath, http.StatusOK, EventTopologyUpdate, true},
		{"topology rejected", http.MethodPut, TopologyPath, http.StatusUnprocessableEntity, EventTopologyRejected, true},
		{"auth failure", http.MethodPut, TopologyPath, http.StatusUnauthorized, EventAPIAuthFailure, true},
		{"rate limited read", http.MethodGet, "/api/v1/pools", http.StatusTooManyRequests, EventAPIRateLimited, true},
		{"other write", http.MethodPost, "/api/v1/other", http.StatusNotFound, EventAPIAccess, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newSyncLogger(&buf, true)

			handler := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.RemoteAddr = "192.0.2.7:40000"
			req.Header.Set("X-Request-ID", "req-1")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}

			events := decodeEvents(t, &buf)
			if !tt.logged {
				if len(events) != 0 {
					t.Fatalf("expected no events, got %+v", events)
				}
				return
			}
			if len(events) != 1 {
				t.Fatalf("expected one event, got %d", len(events))
			}
			e := events[0]
			if e.Type != tt.wantType {
				t.Errorf("Type = %s, want %s", e.Type, tt.wantType)
			}
			if e.SourceIP != "192.0.2.7" {
				t.Errorf("SourceIP = %s, want 192.0.2.7", e.SourceIP)
			}
			if e.RequestID != "req-1" {
				t.Errorf("RequestID = %s, want req-1", e.RequestID)
			}
			if e.Success != (tt.status < 400) {
				t.Errorf("Success = %v for status %d", e.Success, tt.status)
			}
		})
	}
}

func TestMiddleware_Flush(t *testing.T) {
	var buf bytes.Buffer
	logger := newSyncLogger(&buf, true)

	handler := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("wrapped writer should support flushing")
		}
		w.Write([]byte("data: x\n\n"))
		flusher.Flush()
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/topology/watch", nil))

	if !rec.Flushed {
		t.Error("response should be flushed")
	}
	if !strings.Contains(rec.Body.String(), "data: x") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestParseIP(t *testing.T) {
	tests := map[string]string{
		"192.0.2.1:1234":    "192.0.2.1",
		"[2001:db8::1]:443": "2001:db8::1",
		"192.0.2.1":         "192.0.2.1",
		"[2001:db8::2]":     "2001:db8::2",
	}
	for in, want := range tests {
		if got := parseIP(in); got != want {
			t.Errorf("parseIP(%q) = %q, want %q", in, got, want)
		}
	}
}
