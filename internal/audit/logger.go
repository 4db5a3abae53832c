package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("hotroute-audit")

// Logger writes audit events, asynchronously unless SyncWrites is set.
type Logger struct {
	config Config

	mu     sync.Mutex
	writer io.Writer
	stats  LoggerStats

	// queueMu guards sends on eventChan against Stop closing it.
	queueMu   sync.RWMutex
	closed    bool
	eventChan chan *Event
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// Config holds audit logger configuration.
type Config struct {
	// RouterID identifies this router instance in every event.
	RouterID string

	// Writer is where audit events are written (defaults to stdout).
	Writer io.Writer

	// BufferSize is the number of events queued before new ones are dropped.
	BufferSize int

	// MinSeverity is the minimum severity to log.
	MinSeverity Severity

	// SyncWrites writes each event before LogEvent returns.
	SyncWrites bool

	// JSONFormat writes one JSON object per line instead of text.
	JSONFormat bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Writer:      os.Stdout,
		BufferSize:  1024,
		MinSeverity: SeverityInfo,
		JSONFormat:  true,
	}
}

// LoggerStats holds audit logger statistics.
type LoggerStats struct {
	EventsLogged  int64
	EventsDropped int64
	WriteErrors   int64
}

// NewLogger creates a new audit logger.
func NewLogger(config Config) *Logger {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	return &Logger{
		config:    config,
		writer:    config.Writer,
		eventChan: make(chan *Event, config.BufferSize),
		done:      make(chan struct{}),
	}
}

// Start logs the router start and begins writing queued events.
func (l *Logger) Start() {
	l.startOnce.Do(func() {
		if !l.config.SyncWrites {
			go l.processEvents()
		} else {
			close(l.done)
		}
		l.LogEvent(&Event{Type: EventRouterStart, Success: true})
	})
}

// Stop logs the router stop and flushes every queued event.
func (l *Logger) Stop() {
	l.Start()
	l.stopOnce.Do(func() {
		l.LogEvent(&Event{Type: EventRouterStop, Success: true})
		l.queueMu.Lock()
		l.closed = true
		close(l.eventChan)
		l.queueMu.Unlock()
		<-l.done
	})
}

// LogEvent fills in defaults and records event. Events are dropped when
// the queue is full.
func (l *Logger) LogEvent(event *Event) {
	l.prepareEvent(event)
	if event.Type.GetSeverity() < l.config.MinSeverity {
		return
	}

	if l.config.SyncWrites {
		l.writeEvent(event)
		return
	}

	l.queueMu.RLock()
	defer l.queueMu.RUnlock()
	if l.closed {
		l.dropped()
		return
	}
	select {
	case l.eventChan <- event:
	default:
		l.dropped()
	}
}

func (l *Logger) dropped() {
	l.mu.Lock()
	l.stats.EventsDropped++
	l.mu.Unlock()
}

func (l *Logger) prepareEvent(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.RouterID == "" {
		event.RouterID = l.config.RouterID
	}
}

func (l *Logger) processEvents() {
	defer close(l.done)
	for event := range l.eventChan {
		l.writeEvent(event)
	}
}

func (l *Logger) writeEvent(event *Event) {
	var output []byte
	if l.config.JSONFormat {
		data, err := json.Marshal(event)
		if err != nil {
			log.Errorf("Failed to encode audit event %s: %v", event.ID, err)
			l.mu.Lock()
			l.stats.WriteErrors++
			l.mu.Unlock()
			return
		}
		output = append(data, '\n')
	} else {
		output = []byte(formatText(event) + "\n")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.writer.Write(output); err != nil {
		l.stats.WriteErrors++
		log.Warnf("Failed to write audit event %s: %v", event.ID, err)
		return
	}
	l.stats.EventsLogged++
}

// formatText formats an event as human-readable text.
func formatText(event *Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s router=%s type=%s",
		event.Timestamp.Format(time.RFC3339),
		event.Type.GetSeverity(),
		event.RouterID,
		event.Type,
	)

	if event.SourceIP != "" {
		fmt.Fprintf(&b, " source_ip=%s", event.SourceIP)
	}
	if event.HTTPMethod != "" {
		fmt.Fprintf(&b, " method=%s", event.HTTPMethod)
	}
	if event.Endpoint != "" {
		fmt.Fprintf(&b, " endpoint=%s", event.Endpoint)
	}
	if event.HTTPStatus != 0 {
		fmt.Fprintf(&b, " status=%d", event.HTTPStatus)
	}
	if !event.Success {
		b.WriteString(" success=false")
	}
	if event.ErrorMessage != "" {
		fmt.Fprintf(&b, " error=%q", event.ErrorMessage)
	}

	keys := make([]string, 0, len(event.Metadata))
	for k := range event.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, event.Metadata[k])
	}
	return b.String()
}

// Stats returns logger statistics.
func (l *Logger) Stats() LoggerStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
