package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestEventType_GetSeverity(t *testing.T) {
	tests := []struct {
		eventType EventType
		severity  Severity
	}{
		{EventAPIAccess, SeverityInfo},
		{EventAPIAuthFailure, SeverityWarning},
		{EventAPIRateLimited, SeverityWarning},
		{EventTopologyUpdate, SeverityNotice},
		{EventTopologyRejected, SeverityWarning},
		{EventRouterStart, SeverityNotice},
		{EventType("UNKNOWN"), SeverityInfo},
	}

	for _, tt := range tests {
		if got := tt.eventType.GetSeverity(); got != tt.severity {
			t.Errorf("%s.GetSeverity() = %v, want %v", tt.eventType, got, tt.severity)
		}
	}
}

func TestEventType_Category(t *testing.T) {
	tests := []struct {
		eventType EventType
		category  string
	}{
		{EventAPIAccess, "api"},
		{EventAPIRateLimited, "api"},
		{EventTopologyUpdate, "topology"},
		{EventTopologyRejected, "topology"},
		{EventRouterStop, "system"},
		{EventType("UNKNOWN"), "other"},
	}

	for _, tt := range tests {
		if got := tt.eventType.Category(); got != tt.category {
			t.Errorf("%s.Category() = %s, want %s", tt.eventType, got, tt.category)
		}
	}
}

func TestSeverity_String(t *testing.T) {
	if SeverityWarning.String() != "WARNING" {
		t.Errorf("SeverityWarning.String() = %s", SeverityWarning.String())
	}
	if Severity(99).String() != "UNKNOWN" {
		t.Errorf("Severity(99).String() = %s", Severity(99).String())
	}
}

func newSyncLogger(buf *bytes.Buffer, jsonFormat bool) *Logger {
	config := DefaultConfig()
	config.RouterID = "router-1"
	config.Writer = buf
	config.SyncWrites = true
	config.JSONFormat = jsonFormat
	return NewLogger(config)
}

func TestLogger_StartStop(t *testing.T) {
	var buf bytes.Buffer
	logger := newSyncLogger(&buf, true)

	logger.Start()
	logger.Stop()
	logger.Stop()

	output := buf.String()
	if !strings.Contains(output, "ROUTER_START") {
		t.Error("Output should contain ROUTER_START")
	}
	if strings.Count(output, "ROUTER_STOP") != 1 {
		t.Errorf("Output should contain ROUTER_STOP once: %s", output)
	}
}

func TestLogger_Async(t *testing.T) {
	var buf bytes.Buffer
	config := DefaultConfig()
	config.Writer = &buf
	logger := NewLogger(config)

	logger.Start()
	for i := 0; i < 5; i++ {
		logger.LogEvent(&Event{Type: EventTopologyUpdate, Success: true})
	}
	logger.Stop()

	// Stop flushes the queue: start, five updates, stop.
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 7 {
		t.Fatalf("got %d lines, want 7:\n%s", len(lines), buf.String())
	}
	if got := logger.Stats().EventsLogged; got != 7 {
		t.Errorf("EventsLogged = %d, want 7", got)
	}

	// Events after Stop are counted as dropped.
	logger.LogEvent(&Event{Type: EventAPIAccess})
	if got := logger.Stats().EventsDropped; got != 1 {
		t.Errorf("EventsDropped = %d, want 1", got)
	}
}

func TestLogger_LogEvent_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newSyncLogger(&buf, true)

	logger.LogEvent(&Event{
		Type:       EventTopologyUpdate,
		Endpoint:   TopologyPath,
		HTTPMethod: "PUT",
		HTTPStatus: 200,
		Success:    true,
	})

	var parsed Event
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("Failed to parse JSON output: %v", err)
	}
	if parsed.Type != EventTopologyUpdate {
		t.Errorf("Type = %s, want %s", parsed.Type, EventTopologyUpdate)
	}
	if parsed.RouterID != "router-1" {
		t.Errorf("RouterID = %s, want router-1", parsed.RouterID)
	}
	if parsed.ID == "" {
		t.Error("Event should have an ID")
	}
	if parsed.Timestamp.IsZero() {
		t.Error("Event should have a timestamp")
	}
}

func TestLogger_LogEvent_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := newSyncLogger(&buf, false)

	logger.LogEvent(&Event{
		Type:         EventTopologyRejected,
		SourceIP:     "10.1.1.1",
		HTTPMethod:   "PUT",
		Endpoint:     TopologyPath,
		HTTPStatus:   422,
		ErrorMessage: "bad ring",
		Metadata:     map[string]string{"b": "2", "a": "1"},
	})

	output := buf.String()
	for _, want := range []string{
		"WARNING",
		"router=router-1",
		"type=TOPOLOGY_REJECTED",
		"source_ip=10.1.1.1",
		"status=422",
		"success=false",
		`error="bad ring"`,
		"a=1 b=2",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Output %q should contain %q", output, want)
		}
	}
}

func TestLogger_MinSeverity(t *testing.T) {
	var buf bytes.Buffer
	logger := newSyncLogger(&buf, true)
	logger.config.MinSeverity = SeverityWarning

	logger.LogEvent(&Event{Type: EventAPIAccess})
	logger.LogEvent(&Event{Type: EventAPIAuthFailure})

	if strings.Contains(buf.String(), "API_ACCESS\"") {
		t.Error("Info event should be filtered")
	}
	if !strings.Contains(buf.String(), "API_AUTH_FAILURE") {
		t.Error("Warning event should be logged")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestLogger_WriteErrors(t *testing.T) {
	config := DefaultConfig()
	config.Writer = failingWriter{}
	config.SyncWrites = true
	logger := NewLogger(config)

	logger.LogEvent(&Event{Type: EventAPIAccess})

	stats := logger.Stats()
	if stats.WriteErrors != 1 || stats.EventsLogged != 0 {
		t.Errorf("stats = %+v, want one write error", stats)
	}
}
