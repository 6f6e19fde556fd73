package app

import (
	"sync"

	"quiz-leaderboard-service/internal/domain"
)

// Hub fans leaderboard snapshots out to subscribers of a book.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Leaderboard]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan domain.Leaderboard]struct{})}
}

// Subscribe registers a channel for bookID and queues initial on it.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(bookID string, initial domain.Leaderboard) (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[bookID]
	if !ok {
		subs = make(map[chan domain.Leaderboard]struct{})
		h.subscribers[bookID] = subs
	}
	subs[ch] = struct{}{}
	ch <- initial
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs, ok := h.subscribers[bookID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, bookID)
		}
	}
	return ch, cancel
}

// Publish delivers lb to every subscriber of lb.BookID without blocking.
func (h *Hub) Publish(lb domain.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[lb.BookID] {
		select {
		case ch <- lb:
		default:
			// slow reader: drop its oldest snapshot so the newest one always lands
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}

// Subscribers returns the number of live subscriptions for bookID.
func (h *Hub) Subscribers(bookID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[bookID])
}
