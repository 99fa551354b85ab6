package event

import (
	"context"
	"sync"

	"github.com/srg/blite/internal/groutine"
)

// DefaultStreamCapacity bounds the events buffered for one listener.
const DefaultStreamCapacity = 64

// Stream feeds a single Listener from its own goroutine.
// Push and Close are safe for concurrent use.
type Stream struct {
	mu     sync.Mutex
	ring   *RingChannel[Event]
	closed bool
	done   <-chan struct{}
}

// NewStream starts the listener goroutine. A non-positive capacity uses
// DefaultStreamCapacity.
func NewStream(name string, capacity int, l Listener) *Stream {
	if capacity <= 0 {
		capacity = DefaultStreamCapacity
	}
	s := &Stream{ring: NewRingChannel[Event](capacity)}
	s.done = groutine.GoDone(context.Background(), name, func(ctx context.Context) {
		for e := range s.ring.C() {
			l(e)
		}
	})
	return s
}

// Push queues e for the listener. Returns false once the stream is closed.
func (s *Stream) Push(e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.ring.Send(e)
	return true
}

// Close stops accepting events. Events already queued are still delivered.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.ring.Close()
}

// Done is closed once the listener goroutine has delivered every queued event.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Dropped returns how many events were overwritten before delivery.
func (s *Stream) Dropped() int64 {
	return s.ring.Overwritten()
}
