// Package eventbus fans board events out to the live viewers of each board.
package eventbus

import (
	"fmt"
	"sync"
	"sync/atomic"

	"board-service/domain"
)

// DefaultCapacity is the number of events buffered per subscriber before the
// oldest ones are dropped.
const DefaultCapacity = 100

// LaggedError reports events a slow subscriber never received. The
// subscription resumes with the oldest event still buffered.
type LaggedError struct {
	Missed uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("subscriber lagged behind by %d events", e.Missed)
}

// Bus is a registry of per-board topics. The zero value is not usable; call New.
type Bus struct {
	mu       sync.Mutex
	topics   map[string]*topic
	capacity int
	metrics  *metrics
}

type topic struct {
	boardID string
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
}

// New creates a bus whose subscribers buffer capacity events. A non-positive
// capacity selects DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{topics: make(map[string]*topic), capacity: capacity}
}

// Publish delivers ev to every current subscriber of boardID. It never blocks
// and never creates a topic.
func (b *Bus) Publish(boardID string, ev domain.BoardEvent) {
	b.mu.Lock()
	t := b.topics[boardID]
	b.mu.Unlock()
	b.metrics.published()
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for s := range t.subs {
		if s.deliver(ev) {
			b.metrics.dropped()
		}
		b.metrics.delivered()
	}
}

// Subscribe attaches a new subscriber to boardID, creating the topic if needed.
func (b *Bus) Subscribe(boardID string) *Subscription {
	s := &Subscription{
		bus:     b,
		boardID: boardID,
		ch:      make(chan domain.BoardEvent, b.capacity),
	}

	b.mu.Lock()
	t, ok := b.topics[boardID]
	if !ok {
		t = &topic{boardID: boardID, subs: make(map[*Subscription]struct{})}
		b.topics[boardID] = t
		b.metrics.topicOpened()
	}
	// Lock order is bus then topic; Publish never holds both.
	t.mu.Lock()
	t.subs[s] = struct{}{}
	t.mu.Unlock()
	s.topic = t
	b.mu.Unlock()

	b.metrics.subscribed()
	return s
}

// CleanupBoard removes the topic of boardID if nobody is subscribed to it.
func (b *Bus) CleanupBoard(boardID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[boardID]
	if !ok {
		return
	}
	t.mu.Lock()
	empty := len(t.subs) == 0
	t.mu.Unlock()
	if empty {
		delete(b.topics, boardID)
		b.metrics.topicClosed()
	}
}

// TopicCount returns the number of live topics.
func (b *Bus) TopicCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}

// SubscriberCount returns the number of subscribers of boardID.
func (b *Bus) SubscriberCount(boardID string) int {
	b.mu.Lock()
	t := b.topics[boardID]
	b.mu.Unlock()
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Subscription is one viewer's receive handle. It is owned by a single
// goroutine apart from Close, which may be called from anywhere.
type Subscription struct {
	bus     *Bus
	boardID string
	topic   *topic
	ch      chan domain.BoardEvent
	missed  atomic.Uint64
	closed  bool
}

// BoardID returns the board the subscription listens to.
func (s *Subscription) BoardID() string { return s.boardID }

// Events returns the channel events arrive on. It is closed by Close.
func (s *Subscription) Events() <-chan domain.BoardEvent { return s.ch }

// Lagged reports the events dropped since the last call, or nil if the
// subscriber kept up.
func (s *Subscription) Lagged() *LaggedError {
	if n := s.missed.Swap(0); n > 0 {
		return &LaggedError{Missed: n}
	}
	return nil
}

// Close detaches the subscriber and closes its channel. It is safe to call
// more than once.
func (s *Subscription) Close() {
	t := s.topic
	t.mu.Lock()
	if s.closed {
		t.mu.Unlock()
		return
	}
	s.closed = true
	delete(t.subs, s)
	close(s.ch)
	t.mu.Unlock()
	s.bus.metrics.unsubscribed()
}

// deliver enqueues ev, evicting the oldest buffered event when the buffer is
// full. It reports whether an event was dropped. Callers hold the topic lock.
func (s *Subscription) deliver(ev domain.BoardEvent) bool {
	select {
	case s.ch <- ev:
		return false
	default:
	}
	dropped := false
	select {
	case <-s.ch:
		dropped = true
		s.missed.Add(1)
	default:
	}
	// Only Publish sends, under the topic lock, so the freed slot stays free.
	s.ch <- ev
	return dropped
}
