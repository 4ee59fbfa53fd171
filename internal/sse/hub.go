package sse

import (
	"log/slog"
	"sync"
)

// Event is one server-sent event.
type Event struct {
	Type string // "scan", "hydrate"
	Data []byte // JSON payload
}

// Hub fans scan events out to each user's open streams.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[int]map[chan Event]struct{} // userID -> set of channels
	logger      *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[int]map[chan Event]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a stream for userID. The returned cancel function must
// be called when the client disconnects.
func (h *Hub) Subscribe(userID int) (<-chan Event, func()) {
	ch := make(chan Event, 64)
	h.mu.Lock()
	if h.subscribers[userID] == nil {
		h.subscribers[userID] = make(map[chan Event]struct{})
	}
	h.subscribers[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers[userID], ch)
			if len(h.subscribers[userID]) == 0 {
				delete(h.subscribers, userID)
			}
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish sends event to every stream of userID. Slow clients lose the event.
func (h *Hub) Publish(userID int, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[userID] {
		select {
		case ch <- event:
		default:
			h.logger.Warn("sse: dropped event for slow client", "user_id", userID)
		}
	}
}

// SubscriberCount returns the number of open streams for userID.
func (h *Hub) SubscriberCount(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[userID])
}
