// Package notify fans review-case lifecycle events out to live subscribers.
// Delivery is best-effort per subscriber: a blocked mailbox is never allowed
// to stall publication to its siblings.
package notify

import (
	"sync"
	"time"

	"github.com/rotorstar/hitl-protocol/internal/idgen"
	qmem "github.com/rotorstar/hitl-protocol/service/messaging/memory"
)

// Config controls subscription behaviour.
type Config struct {
	// Heartbeat is emitted by a subscription when no real event arrived
	// within this interval.
	Heartbeat time.Duration
	// Mailbox bounds the per-subscriber event buffer.
	Mailbox int
}

// DefaultConfig returns the protocol defaults: 30s heartbeat, 64-event
// mailboxes.
func DefaultConfig() Config {
	return Config{Heartbeat: 30 * time.Second, Mailbox: qmem.DefaultConfig().QueueBuffer}
}

type entry struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
	seq  uint64
}

// Hub is a per-case publish/subscribe registry. Entries are pruned when a
// case loses its last subscriber; the per-case sequence survives pruning so
// event ids stay monotonic across reconnects.
type Hub struct {
	config  Config
	mu      sync.RWMutex
	entries map[string]*entry
	seqs    map[string]uint64
}

// New creates a hub; zero config values fall back to defaults.
func New(config Config) *Hub {
	if config.Heartbeat <= 0 {
		config.Heartbeat = DefaultConfig().Heartbeat
	}
	if config.Mailbox <= 0 {
		config.Mailbox = DefaultConfig().Mailbox
	}
	return &Hub{
		config:  config,
		entries: make(map[string]*entry),
		seqs:    make(map[string]uint64),
	}
}

// Subscribe registers a new listener for the case and primes its mailbox
// with the supplied current-state snapshot so a late subscriber always has a
// baseline. Registration happens under the registry lock; a concurrent
// unsubscribe can therefore never prune the entry between lookup and
// registration.
func (h *Hub) Subscribe(caseID string, snapshot Event) *Subscription {
	sub := &Subscription{
		id:        idgen.New(),
		caseID:    caseID,
		hub:       h,
		heartbeat: h.config.Heartbeat,
		mailbox:   qmem.NewQueue[Event](qmem.Config{QueueBuffer: h.config.Mailbox}),
	}

	h.mu.Lock()
	e, ok := h.entries[caseID]
	if !ok {
		e = &entry{subs: make(map[*Subscription]struct{}), seq: h.seqs[caseID]}
		h.entries[caseID] = e
	}
	e.mu.Lock()
	e.seq++
	snapshot.ID = eventID(e.seq)
	e.subs[sub] = struct{}{}
	e.mu.Unlock()
	h.mu.Unlock()

	sub.mailbox.TryPublish(&snapshot)
	return sub
}

// Publish delivers the event to every live subscriber of the case without
// blocking. With no subscribers it is a no-op.
func (h *Hub) Publish(caseID string, event Event) {
	h.mu.RLock()
	e, ok := h.entries[caseID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	e.seq++
	event.ID = eventID(e.seq)
	for sub := range e.subs {
		evt := event
		sub.mailbox.TryPublish(&evt)
	}
	e.mu.Unlock()
}

// Drop discards all bookkeeping for a case, including its event sequence.
// Called when the case itself is evicted from the registry.
func (h *Hub) Drop(caseID string) {
	h.mu.Lock()
	delete(h.entries, caseID)
	delete(h.seqs, caseID)
	h.mu.Unlock()
}

// Subscribers returns the number of live listeners for a case.
func (h *Hub) Subscribers(caseID string) int {
	h.mu.RLock()
	e, ok := h.entries[caseID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Len returns the number of cases with at least one subscriber.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[sub.caseID]
	if !ok {
		return
	}
	e.mu.Lock()
	delete(e.subs, sub)
	empty := len(e.subs) == 0
	seq := e.seq
	e.mu.Unlock()
	if empty {
		// Prune the registry entry but remember the sequence so ids stay
		// monotonic for the next subscriber.
		h.seqs[sub.caseID] = seq
		delete(h.entries, sub.caseID)
	}
}
