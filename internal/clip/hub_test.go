package clip

import (
	"fmt"
	"testing"
)

func drain(sub *Subscriber) [][]byte {
	var msgs [][]byte
	for {
		select {
		case msg := <-sub.Events():
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func TestHub_BroadcastReachesAllSubscribers(t *testing.T) {
	h := NewHub()
	s1 := h.Subscribe()
	s2 := h.Subscribe()

	h.Broadcast([]byte("one"))
	h.Broadcast([]byte("two"))

	for i, sub := range []*Subscriber{s1, s2} {
		msgs := drain(sub)
		if len(msgs) != 2 || string(msgs[0]) != "one" || string(msgs[1]) != "two" {
			t.Fatalf("subscriber %d got %q", i, msgs)
		}
	}
}

func TestHub_UnsubscribeIdempotent(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	if h.Len() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", h.Len())
	}

	h.Broadcast([]byte("x"))
	if msgs := drain(sub); len(msgs) != 0 {
		t.Fatalf("expected no delivery after unsubscribe, got %d", len(msgs))
	}

	select {
	case <-sub.Done():
	default:
		t.Fatalf("expected Done to be closed")
	}
}

func TestHub_SlowSubscriberIsDropped(t *testing.T) {
	h := NewHub()
	slow := h.Subscribe()
	fast := h.Subscribe()

	// Overfill the slow subscriber's buffer without draining it.
	for i := 0; i < subscriberBuffer+1; i++ {
		h.Broadcast([]byte(fmt.Sprintf("m%d", i)))
		drain(fast)
	}

	select {
	case <-slow.Done():
	default:
		t.Fatalf("expected slow subscriber to be dropped")
	}
	if h.Len() != 1 {
		t.Fatalf("expected only fast subscriber left, got %d", h.Len())
	}

	// The remaining member keeps receiving.
	h.Broadcast([]byte("after"))
	msgs := drain(fast)
	if len(msgs) != 1 || string(msgs[0]) != "after" {
		t.Fatalf("expected fast subscriber to keep receiving, got %q", msgs)
	}
}

func TestHub_CloseAllDetachesEveryone(t *testing.T) {
	h := NewHub()
	s1 := h.Subscribe()
	s2 := h.Subscribe()

	h.CloseAll()
	if h.Len() != 0 {
		t.Fatalf("expected empty hub, got %d", h.Len())
	}
	for i, sub := range []*Subscriber{s1, s2} {
		select {
		case <-sub.Done():
		default:
			t.Fatalf("expected subscriber %d Done closed", i)
		}
	}
}
