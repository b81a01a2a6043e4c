// Package events is a best-effort publish/subscribe feed for dashboards.
//
// Delivery is at-most-once: each subscriber gets a bounded channel and
// events are dropped when it is full. Dashboards recover gaps through
// periodic full-state refresh, so no backpressure is applied to callers.
package events

import (
	"sync"

	"github.com/google/uuid"
)

const subscriberBuffer = 100

// Event is an arbitrary JSON-able payload with a "type" discriminator.
type Event map[string]any

// Subscription is one subscriber's view of a topic.
type Subscription struct {
	id    string
	topic string
	ch    chan Event
	hub   *Hub
}

// C is the channel events arrive on. It is closed by Cancel.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Cancel removes the subscription and closes its channel.
func (s *Subscription) Cancel() {
	s.hub.unsubscribe(s)
}

// Hub fans events out to topic subscribers.
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[string]*Subscription
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[string]*Subscription)}
}

// Publish delivers event to every subscriber of topic. Slow subscribers
// with a full buffer miss the event.
//
// The lock is held across the fan-out so a concurrent Cancel cannot
// close a channel mid-send; the sends never block, so the hold time is
// bounded.
func (h *Hub) Publish(topic string, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range h.topics[topic] {
		select {
		case s.ch <- event:
		default:
			// drop for this subscriber
		}
	}
}

// Subscribe registers a new subscriber on topic.
func (h *Hub) Subscribe(topic string) *Subscription {
	s := &Subscription{
		id:    uuid.NewString(),
		topic: topic,
		ch:    make(chan Event, subscriberBuffer),
		hub:   h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[string]*Subscription)
	}
	h.topics[topic][s.id] = s
	return s
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.topics[s.topic]
	if _, ok := subs[s.id]; !ok {
		return
	}
	delete(subs, s.id)
	close(s.ch)
}

// Subscribers reports the subscriber count for a topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}
