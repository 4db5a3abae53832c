// Package audit records changes made to the router through its admin API.
package audit

import (
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	// API access events
	EventAPIAccess      EventType = "API_ACCESS"
	EventAPIAuthFailure EventType = "API_AUTH_FAILURE"
	EventAPIRateLimited EventType = "API_RATE_LIMITED"

	// Topology events
	EventTopologyUpdate   EventType = "TOPOLOGY_UPDATE"
	EventTopologyRejected EventType = "TOPOLOGY_REJECTED"

	// Router lifecycle
	EventRouterStart EventType = "ROUTER_START"
	EventRouterStop  EventType = "ROUTER_STOP"
)

// Severity represents the severity of an event.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityNotice
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "DEBUG"
	case SeverityInfo:
		return "INFO"
	case SeverityNotice:
		return "NOTICE"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// GetSeverity returns the severity for an event type.
func (e EventType) GetSeverity() Severity {
	switch e {
	case EventAPIAuthFailure, EventAPIRateLimited, EventTopologyRejected:
		return SeverityWarning
	case EventTopologyUpdate, EventRouterStart, EventRouterStop:
		return SeverityNotice
	default:
		return SeverityInfo
	}
}

// Category returns the category for an event type.
func (e EventType) Category() string {
	switch e {
	case EventAPIAccess, EventAPIAuthFailure, EventAPIRateLimited:
		return "api"
	case EventTopologyUpdate, EventTopologyRejected:
		return "topology"
	case EventRouterStart, EventRouterStop:
		return "system"
	default:
		return "other"
	}
}

// Event represents a single audit event.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RouterID  string    `json:"router_id,omitempty"`

	// Request context
	RequestID  string `json:"request_id,omitempty"`
	SourceIP   string `json:"source_ip,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
	HTTPMethod string `json:"http_method,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Duration   string `json:"duration,omitempty"`

	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}
