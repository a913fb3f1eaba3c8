// Package broadcast fans values out to independent subscribers without letting
// a slow subscriber hold up the publisher.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultBuffer is the per-subscriber channel capacity used when Subscribe
// is given a non-positive size.
const DefaultBuffer = 64

// Subscription is one subscriber's view of a Hub.
type Subscription[T any] struct {
	ID string
	C  <-chan T

	ch      chan T
	dropped atomic.Int64
}

// Dropped returns how many values were discarded because C was full.
func (s *Subscription[T]) Dropped() int64 {
	return s.dropped.Load()
}

// Hub delivers published values to every subscriber.
type Hub[T any] struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscription[T]
	closed      bool
}

func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subscribers: make(map[string]*Subscription[T])}
}

// Subscribe registers a subscriber. On a closed hub the returned
// subscription's channel is already closed.
func (h *Hub[T]) Subscribe(buffer int) *Subscription[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan T, buffer)
	sub := &Subscription[T]{ID: uuid.New().String(), C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return sub
	}
	h.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub[T]) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subscribers[id]; ok {
		close(sub.ch)
		delete(h.subscribers, id)
	}
}

// Publish offers value to every subscriber. Full subscribers miss it.
func (h *Hub[T]) Publish(value T) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	for _, sub := range h.subscribers {
		select {
		case sub.ch <- value:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.closed = true
	for _, sub := range h.subscribers {
		close(sub.ch)
	}
	h.subscribers = make(map[string]*Subscription[T])
}

// Closed reports whether Close has been called.
func (h *Hub[T]) Closed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub[T]) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
