// Package realtime fans committed row changes out to subscribed clients.
package realtime

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"finsight/internal/core"
	"finsight/internal/log"
)

// DefaultBuffer is the per-subscription queue length.
const DefaultBuffer = 32

type topic struct {
	table  string
	userID uuid.UUID
}

// Hub routes change events to the subscriptions registered for the event's
// table and owning user. Publish never blocks: a subscription whose buffer is
// full misses the event, while the events already queued for it still
// trigger a refetch.
type Hub struct {
	mu      sync.RWMutex
	subs    map[topic]map[*Subscription]struct{}
	buffer  int
	dropped atomic.Int64
	logger  *log.Logger
}

func NewHub(buffer int, logger *log.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Hub{
		subs:   make(map[topic]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger.WithComponent(log.ComponentRealtime),
	}
}

type Subscription struct {
	hub    *Hub
	topic  topic
	events chan core.ChangeEvent
	closed bool
}

func (s *Subscription) Events() <-chan core.ChangeEvent { return s.events }

// Close unregisters the subscription and closes its channel. It is safe to
// call more than once.
func (s *Subscription) Close() error {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if set, ok := h.subs[s.topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.topic)
		}
	}
	close(s.events)
	return nil
}

func (h *Hub) Subscribe(table string, userID uuid.UUID) (*Subscription, error) {
	if !core.ValidTable(table) {
		return nil, fmt.Errorf("%w: unknown table %q", core.ErrInvalidInput, table)
	}
	if userID == uuid.Nil {
		return nil, core.ErrNotAuthenticated
	}
	t := topic{table: table, userID: userID}
	s := &Subscription{hub: h, topic: t, events: make(chan core.ChangeEvent, h.buffer)}

	h.mu.Lock()
	set, ok := h.subs[t]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[t] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("Subscribed", log.FieldTable, table, log.FieldUserID, userID.String())
	return s, nil
}

// Publish delivers ev to matching subscriptions and returns how many
// received it.
func (h *Hub) Publish(ev core.ChangeEvent) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for s := range h.subs[topic{table: ev.Table, userID: ev.UserID}] {
		select {
		case s.events <- ev:
			delivered++
		default:
			h.dropped.Add(1)
			h.logger.Debug("Subscriber buffer full, event dropped",
				log.FieldTable, ev.Table, log.FieldUserID, ev.UserID.String())
		}
	}
	return delivered
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

// Dropped returns how many events were discarded for full buffers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }
