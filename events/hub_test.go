package events

import (
	"sync"
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("orders")
	b := h.Subscribe("orders")
	defer a.Cancel()
	defer b.Cancel()

	h.Publish("orders", Event{"type": "order_created", "order_number": "0042"})

	for _, sub := range []*Subscription{a, b} {
		select {
		case ev := <-sub.C():
			if ev["type"] != "order_created" {
				t.Fatalf("got event %v", ev)
			}
		default:
			t.Fatal("subscriber missed the event")
		}
	}
}

func TestPublishToOtherTopicNotDelivered(t *testing.T) {
	h := NewHub()
	s := h.Subscribe("orders")
	defer s.Cancel()

	h.Publish("calls", Event{"type": "CallEnded"})

	select {
	case ev := <-s.C():
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}

func TestSlowSubscriberDropsNotBlocks(t *testing.T) {
	h := NewHub()
	s := h.Subscribe("orders")
	defer s.Cancel()

	// Publish past the buffer; must never block the publisher.
	for i := 0; i < subscriberBuffer+50; i++ {
		h.Publish("orders", Event{"type": "order_status_changed", "n": i})
	}

	received := 0
	for {
		select {
		case <-s.C():
			received++
			continue
		default:
		}
		break
	}
	if received != subscriberBuffer {
		t.Fatalf("received %d events, want %d buffered", received, subscriberBuffer)
	}
}

func TestPublishDuringCancelNeverPanics(t *testing.T) {
	h := NewHub()
	stop := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					h.Publish("orders", Event{"type": "order_status_changed"})
				}
			}
		}()
	}

	// Churn subscriptions while the publishers run; a send on a
	// cancelled subscription's channel would panic the publisher.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		s := h.Subscribe("orders")
		s.Cancel()
	}
	close(stop)
	wg.Wait()

	if h.Subscribers("orders") != 0 {
		t.Fatalf("leaked %d subscribers", h.Subscribers("orders"))
	}
}

func TestCancelClosesChannel(t *testing.T) {
	h := NewHub()
	s := h.Subscribe("orders")
	s.Cancel()

	if _, ok := <-s.C(); ok {
		t.Fatal("channel still open after Cancel")
	}
	if h.Subscribers("orders") != 0 {
		t.Fatal("subscriber not removed")
	}
	// Double cancel is a no-op, not a panic.
	s.Cancel()
}
