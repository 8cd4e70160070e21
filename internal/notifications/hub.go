package notifications

import (
	"sync"
	"time"
)

const (
	EventConnected     = "connected"
	EventBudgetUpdated = "budget_updated"

	subscriberBuffer = 10
)

type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
}

// NewHub создает хаб для SSE-подписок.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan Event]struct{}),
	}
}

// Subscribe подписывает владельца на события и возвращает канал и функцию отписки.
// Функцию отписки можно вызывать повторно.
func (h *Hub) Subscribe(ownerID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	var once sync.Once

	h.mu.Lock()
	defer h.mu.Unlock()

	ownerSubs, ok := h.subscribers[ownerID]
	if !ok {
		ownerSubs = make(map[chan Event]struct{})
		h.subscribers[ownerID] = ownerSubs
	}
	ownerSubs[ch] = struct{}{}

	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			if subs, exists := h.subscribers[ownerID]; exists {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(h.subscribers, ownerID)
				}
			}
			close(ch)
		})
	}
}

// Subscribers возвращает число активных подписок владельца.
func (h *Hub) Subscribers(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[ownerID])
}

// Publish отправляет событие всем подписчикам владельца. Медленные подписчики пропускают событие.
func (h *Hub) Publish(ownerID string, event Event) {
	event.Timestamp = time.Now().UTC()

	h.mu.RLock()
	defer h.mu.RUnlock()

	subs, ok := h.subscribers[ownerID]
	if !ok {
		return
	}

	for ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}
