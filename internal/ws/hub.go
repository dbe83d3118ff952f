// Package ws fans change events out to feed subscribers. Subscriptions
// are keyed by collection; each published event receives a per-collection
// monotonic sequence number before delivery.
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/okonek/teamspace/internal/domain"
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub manages feed subscriptions by collection.
type Hub struct {
	mu        sync.Mutex
	clients   map[string]map[Subscriber]string
	sequences map[string]uint64
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	return &Hub{
		clients:   make(map[string]map[Subscriber]string),
		sequences: make(map[string]uint64),
	}
}

// Register adds a client to a collection feed. A non-empty teamID
// restricts delivery to events scoped to that team.
func (h *Hub) Register(collection string, client Subscriber, teamID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[collection]; !ok {
		h.clients[collection] = make(map[Subscriber]string)
	}
	h.clients[collection][client] = teamID
}

// Unregister removes a client.
func (h *Hub) Unregister(collection string, client Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[collection]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, collection)
		}
	}
}

// Publish stamps the event with the next sequence number for its
// collection and delivers it to matching subscribers. Failed sends evict
// the subscriber.
func (h *Hub) Publish(event domain.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sequences[event.Collection]++
	event.Seq = h.sequences[event.Collection]
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	clients, ok := h.clients[event.Collection]
	if !ok {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	for c, teamFilter := range clients {
		if teamFilter != "" && teamFilter != event.TeamID {
			continue
		}
		if err := c.Send(payload); err != nil {
			c.Close()
			delete(clients, c)
		}
	}
	if len(clients) == 0 {
		delete(h.clients, event.Collection)
	}
}
