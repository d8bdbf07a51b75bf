package alerts

import (
	"log"
	"sync"

	"amble/internal/models"
)

// Subscriber is one live in-app connection waiting for a user's alerts.
type Subscriber struct {
	ID      string
	UserKey string
	Alerts  chan *models.Alert
}

// Hub fans new alerts out to live subscribers of the same user.
type Hub struct {
	subscribers map[string]*Subscriber
	mutex       sync.RWMutex
	onCount     func(n int)
}

// NewHub creates an empty hub. onCount, when set, observes the subscriber count.
func NewHub(onCount func(n int)) *Hub {
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		onCount:     onCount,
	}
}

// Subscribe registers a subscriber with a small buffer.
func (h *Hub) Subscribe(id, userKey string) *Subscriber {
	sub := &Subscriber{ID: id, UserKey: userKey, Alerts: make(chan *models.Alert, 16)}

	h.mutex.Lock()
	h.subscribers[id] = sub
	n := len(h.subscribers)
	h.mutex.Unlock()

	if h.onCount != nil {
		h.onCount(n)
	}
	log.Printf("✅ [ALERT-HUB] Subscriber added: %s (Total: %d)", id, n)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mutex.Lock()
	sub, exists := h.subscribers[id]
	if exists {
		delete(h.subscribers, id)
		close(sub.Alerts)
	}
	n := len(h.subscribers)
	h.mutex.Unlock()

	if !exists {
		return
	}
	if h.onCount != nil {
		h.onCount(n)
	}
	log.Printf("❌ [ALERT-HUB] Subscriber removed: %s (Total: %d)", id, n)
}

// Publish hands the alert to every subscriber of its user. Slow subscribers
// with a full buffer miss the alert; the stored record remains authoritative.
func (h *Hub) Publish(a *models.Alert) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	sent := 0
	for _, sub := range h.subscribers {
		if sub.UserKey != a.UserKey {
			continue
		}
		select {
		case sub.Alerts <- a:
			sent++
		default:
			log.Printf("⚠️ [ALERT-HUB] Subscriber %s buffer full, dropping alert %s", sub.ID, a.ID)
		}
	}
	return sent
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.subscribers)
}
