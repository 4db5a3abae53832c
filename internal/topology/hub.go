package topology

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/codelaboratoryltd/hotroute/internal/cluster"
	"github.com/codelaboratoryltd/hotroute/internal/hashring"
)

// Kinds of topology change.
const (
	KindServers = "servers"
	KindHash    = "hash"
)

// Event is an accepted topology change.
type Event struct {
	// ID is a monotonically increasing sequence number for reconnection support.
	ID uint64 `json:"id"`
	// Kind is KindServers or KindHash.
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Servers   []string  `json:"servers,omitempty"`
	// Spec is set for hash updates.
	Spec *hashring.HashSpec `json:"spec,omitempty"`
}

// Subscriber receives events of one kind, or all kinds.
type Subscriber struct {
	C    chan Event
	kind string
}

// Hub broadcasts topology events and keeps recent ones for replay.
type Hub struct {
	// updateMu orders notified updates with their events, across every
	// Notifier sharing the hub.
	updateMu sync.Mutex

	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
	seq         atomic.Uint64
	replayMu    sync.RWMutex
	replayBuf   []Event
	replayLimit int
}

// NewHub creates a hub keeping up to replayLimit events.
func NewHub(replayLimit int) *Hub {
	if replayLimit <= 0 {
		replayLimit = 256
	}
	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
		replayBuf:   make([]Event, 0, replayLimit),
		replayLimit: replayLimit,
	}
}

// Subscribe returns a subscriber for kind. An empty kind matches every event.
func (h *Hub) Subscribe(kind string) *Subscriber {
	s := &Subscriber{
		C:    make(chan Event, 64),
		kind: kind,
	}
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Unsubscribe removes s and closes its channel. Unknown subscribers are ignored.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[s]; !ok {
		return
	}
	delete(h.subscribers, s)
	close(s.C)
}

// Publish assigns the next ID to e and broadcasts it. Slow subscribers miss
// events rather than block the publisher.
func (h *Hub) Publish(e Event) Event {
	e.ID = h.seq.Add(1)
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	h.replayMu.Lock()
	if len(h.replayBuf) >= h.replayLimit {
		// Drop oldest half when full
		n := copy(h.replayBuf, h.replayBuf[max(h.replayLimit/2, 1):])
		h.replayBuf = h.replayBuf[:n]
	}
	h.replayBuf = append(h.replayBuf, e)
	h.replayMu.Unlock()

	h.mu.RLock()
	for s := range h.subscribers {
		if s.kind != "" && s.kind != e.Kind {
			continue
		}
		select {
		case s.C <- e:
		default:
		}
	}
	h.mu.RUnlock()
	return e
}

// Replay returns events with ID > afterID matching kind.
func (h *Hub) Replay(afterID uint64, kind string) []Event {
	h.replayMu.RLock()
	defer h.replayMu.RUnlock()

	var events []Event
	for _, e := range h.replayBuf {
		if e.ID > afterID && (kind == "" || kind == e.Kind) {
			events = append(events, e)
		}
	}
	return events
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Notifier is an Updater that publishes every accepted update to a Hub.
type Notifier struct {
	next Updater
	hub  *Hub
}

// NewNotifier wraps next so accepted updates are published to hub.
func NewNotifier(next Updater, hub *Hub) *Notifier {
	return &Notifier{next: next, hub: hub}
}

// UpdateServers implements Updater.
func (n *Notifier) UpdateServers(servers []cluster.Server) error {
	n.hub.updateMu.Lock()
	defer n.hub.updateMu.Unlock()

	if err := n.next.UpdateServers(servers); err != nil {
		return err
	}
	addrs := make([]string, 0, len(servers))
	for _, s := range servers {
		addrs = append(addrs, s.String())
	}
	n.hub.Publish(Event{Kind: KindServers, Servers: addrs})
	return nil
}

// UpdateHashFunction implements Updater.
func (n *Notifier) UpdateHashFunction(serverHashCodes []hashring.ServerHash, numOwners int, version hashring.HashVersion, hashSpace int) error {
	n.hub.updateMu.Lock()
	defer n.hub.updateMu.Unlock()

	if err := n.next.UpdateHashFunction(serverHashCodes, numOwners, version, hashSpace); err != nil {
		return err
	}
	addrs := make([]string, 0, len(serverHashCodes))
	for _, sh := range serverHashCodes {
		addrs = append(addrs, sh.Server.String())
	}
	n.hub.Publish(Event{
		Kind:    KindHash,
		Servers: addrs,
		Spec:    &hashring.HashSpec{Version: version, HashSpace: hashSpace, NumOwners: numOwners},
	})
	return nil
}
