// Package stream implements the core's typed publish-subscribe
// primitive (spec §4.1). Each Stream[T] fans messages out to subscriber
// channels in publish order; a Subscription's Unsubscribe guarantees no
// further delivery to it. The shape is the teacher's
// feeds.PolymarketFeed subscriber-channel fan-out (feeds/polymarket_ws.go)
// generalized with generics instead of a hardcoded Tick payload.
package stream

import "sync"

// Action classifies what happened to the Next value relative to Previous.
type Action string

const (
	Create Action = "Create"
	Update Action = "Update"
	Delete Action = "Delete"
)

// Message is one event delivered on a Stream.
type Message[T any] struct {
	Action   Action
	Previous *T
	Next     T
}

// Stream is a single-threaded-delivery publish-subscribe channel: publish
// order is preserved for every subscriber, though subscribers may drain
// at different speeds.
type Stream[T any] struct {
	mu          sync.Mutex
	subscribers map[int]chan Message[T]
	nextID      int
	closed      bool
}

// New creates an empty Stream.
func New[T any]() *Stream[T] {
	return &Stream[T]{subscribers: make(map[int]chan Message[T])}
}

// Subscription is a scoped handle; Unsubscribe guarantees no further
// delivery once it returns.
type Subscription[T any] struct {
	id     int
	ch     chan Message[T]
	stream *Stream[T]
}

// C returns the channel to receive messages on.
func (s *Subscription[T]) C() <-chan Message[T] { return s.ch }

// Unsubscribe releases the subscription. Safe to call more than once.
func (s *Subscription[T]) Unsubscribe() {
	s.stream.mu.Lock()
	defer s.stream.mu.Unlock()
	if _, ok := s.stream.subscribers[s.id]; !ok {
		return
	}
	delete(s.stream.subscribers, s.id)
	close(s.ch)
}

// Subscribe returns a new scoped Subscription with a buffered channel so a
// slow subscriber cannot stall Publish for the others.
func (s *Stream[T]) Subscribe(buffer int) *Subscription[T] {
	if buffer < 1 {
		buffer = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Message[T], buffer)
	s.subscribers[id] = ch
	return &Subscription[T]{id: id, ch: ch, stream: s}
}

// Publish delivers msg to every current subscriber. Publish never blocks
// indefinitely on a full subscriber channel beyond the channel's buffer;
// a subscriber that falls too far behind drops the message rather than
// stalling the publisher (the matching engine's critical sections must
// never suspend — spec §5).
func (s *Stream[T]) Publish(msg Message[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, ch := range s.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Close unsubscribes and closes every current subscriber channel. After
// Close, Publish is a no-op.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}

// Merge combines N streams' outputs into one channel. Per-stream order is
// preserved; interleaving across streams is unspecified (spec §4.1(c)).
// The returned channel closes once all input subscriptions are
// unsubscribed/closed and their goroutines exit.
func Merge[T any](subs ...*Subscription[T]) <-chan Message[T] {
	out := make(chan Message[T])
	var wg sync.WaitGroup
	wg.Add(len(subs))

	for _, sub := range subs {
		go func(sub *Subscription[T]) {
			defer wg.Done()
			for msg := range sub.C() {
				out <- msg
			}
		}(sub)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
