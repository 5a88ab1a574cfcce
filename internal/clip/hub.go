package clip

import "sync"

// subscriberBuffer bounds the outbound queue per attached device. A
// device that falls this far behind is dropped rather than allowed to
// stall delivery to the rest of the session.
const subscriberBuffer = 64

// Subscriber is one attached device's outbound event stream.
type Subscriber struct {
	ch     chan []byte
	done   chan struct{}
	closer sync.Once
}

func newSubscriber() *Subscriber {
	return &Subscriber{
		ch:   make(chan []byte, subscriberBuffer),
		done: make(chan struct{}),
	}
}

// Events delivers broadcast payloads in the order they were accepted.
func (s *Subscriber) Events() <-chan []byte {
	return s.ch
}

// Done is closed when the subscriber is detached, dropped for falling
// behind, or the session ends.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) close() {
	s.closer.Do(func() { close(s.done) })
}

// Hub fans accepted mutations out to every subscriber of one session.
type Hub struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{})}
}

func (h *Hub) Subscribe() *Subscriber {
	sub := newSubscriber()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe is idempotent and never touches the item log.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	sub.close()
}

// Broadcast queues msg for every subscriber without blocking. A full
// buffer means the device is too slow or gone; it gets dropped and the
// remaining members are unaffected.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		select {
		case sub.ch <- msg:
		default:
			delete(h.subs, sub)
			sub.close()
		}
	}
}

// CloseAll detaches every subscriber. Used on session teardown after
// the final session-ended event has been queued.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		delete(h.subs, sub)
		sub.close()
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
