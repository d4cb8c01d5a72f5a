package stream

import (
	"sync"
	"sync/atomic"
)

// FilterFunc narrows a subscription: only events it accepts are
// delivered. Rejections are not drops; the subscriber asked to skip them.
type FilterFunc func(*Event) bool

// Subscriber is one consumer of the broker's event flow. Delivery is
// credit-based: the consumer grants credits up front and replenishes
// them as it drains its channel, so the broker stops sending to a
// consumer that stopped reading.
//
// A slow subscriber never blocks publishers. Events that cannot be
// delivered are dropped and counted; consumers that fall behind are
// expected to resynchronize from the tracker's snapshot.
type Subscriber struct {
	id     string
	ch     chan *Event
	closed atomic.Bool

	// credits gates delivery; zero means skip this subscriber.
	// dropped counts events lost to exhausted credits or a full channel.
	credits atomic.Int64
	dropped atomic.Int64

	mu     sync.RWMutex
	filter FilterFunc
	topics map[string]struct{}
}

// NewSubscriber builds a subscriber whose channel buffers bufferSize
// events and whose opening credit balance is initialCredits.
func NewSubscriber(id string, bufferSize int, initialCredits int64) *Subscriber {
	sub := &Subscriber{
		id:     id,
		topics: make(map[string]struct{}),
		ch:     make(chan *Event, bufferSize),
	}
	sub.credits.Store(initialCredits)
	return sub
}

// ID names this subscriber within the broker.
func (s *Subscriber) ID() string { return s.id }

// C is the channel events arrive on. It closes when the subscriber is
// removed or the broker shuts down.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// AddCredits raises the delivery allowance by n.
func (s *Subscriber) AddCredits(n int64) { s.credits.Add(n) }

// Credits reports the remaining delivery allowance.
func (s *Subscriber) Credits() int64 { return s.credits.Load() }

// Dropped returns how many events were dropped for this subscriber.
// Filtered events do not count as drops.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// SetFilter installs a delivery filter. Safe to call while events flow;
// a nil filter delivers everything.
func (s *Subscriber) SetFilter(fn FilterFunc) {
	s.mu.Lock()
	s.filter = fn
	s.mu.Unlock()
}

// Topics lists the topic names this subscriber is attached to, in no
// particular order.
func (s *Subscriber) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.topics))
	for topic := range s.topics {
		names = append(names, topic)
	}
	return names
}

func (s *Subscriber) addTopic(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.topics[topic] = struct{}{}
}

func (s *Subscriber) removeTopic(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.topics, topic)
}

// accepts applies the filter, if any, under the read lock.
func (s *Subscriber) accepts(evt *Event) bool {
	s.mu.RLock()
	fn := s.filter
	s.mu.RUnlock()
	return fn == nil || fn(evt)
}

// takeCredit claims one delivery credit, reporting whether one was
// available. A failed claim leaves the balance unchanged.
func (s *Subscriber) takeCredit() bool {
	if s.credits.Add(-1) >= 0 {
		return true
	}
	s.credits.Add(1)
	return false
}

// send attempts to deliver an event, reporting whether it was accepted.
// Delivery fails silently when the subscriber is closed or the filter
// rejects the event, and as a counted drop when credits ran out or the
// channel is full.
func (s *Subscriber) send(evt *Event) bool {
	if s.closed.Load() || !s.accepts(evt) {
		return false
	}

	if !s.takeCredit() {
		s.dropped.Add(1)
		return false
	}

	select {
	case s.ch <- evt:
		return true
	default:
		// Channel full; the credit goes back.
		s.credits.Add(1)
		s.dropped.Add(1)
		return false
	}
}

// Close shuts the event channel. Closing twice is safe, and sends after
// Close are ignored.
func (s *Subscriber) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}
