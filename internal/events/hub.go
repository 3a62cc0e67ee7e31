// Package events fans map update notifications out to subscribers.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MapUpdate announces that a scope's knowledge changed.
type MapUpdate struct {
	Scope               string    `json:"scope"`
	SectorID            int       `json:"sector_id"`
	TotalSectorsVisited int       `json:"total_sectors_visited"`
	Version             int64     `json:"version"`
	At                  time.Time `json:"at"`
}

// Publisher is anything that can deliver a MapUpdate.
type Publisher interface {
	Publish(u MapUpdate)
}

type subscriber struct {
	scopes map[string]bool
	ch     chan MapUpdate
}

// Hub is an in-process broadcaster. Publish never blocks: a subscriber whose
// buffer is full misses the update.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	buffer int
}

// NewHub creates a hub whose subscriber channels hold buffer updates.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{subs: make(map[string]*subscriber), buffer: buffer}
}

// Subscribe registers interest in the given scope keys. An empty list
// subscribes to every scope.
func (h *Hub) Subscribe(scopes ...string) (string, <-chan MapUpdate) {
	id := uuid.NewString()
	s := &subscriber{scopes: make(map[string]bool, len(scopes)), ch: make(chan MapUpdate, h.buffer)}
	for _, sc := range scopes {
		s.scopes[sc] = true
	}
	h.mu.Lock()
	h.subs[id] = s
	h.mu.Unlock()
	return id, s.ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	s, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()
	if ok {
		close(s.ch)
	}
}

// Publish delivers u to every matching subscriber.
func (h *Hub) Publish(u MapUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if len(s.scopes) > 0 && !s.scopes[u.Scope] {
			continue
		}
		select {
		case s.ch <- u:
		default:
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Multi publishes to several publishers in order.
type Multi []Publisher

func (m Multi) Publish(u MapUpdate) {
	for _, p := range m {
		if p != nil {
			p.Publish(u)
		}
	}
}
