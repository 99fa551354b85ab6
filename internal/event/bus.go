package event

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Bus routes events to at most one listener per Type and records every event
// in a Journal. Safe for concurrent use.
type Bus struct {
	mu      sync.Mutex
	streams map[Type]*Stream
	journal *Journal
	logger  *logrus.Logger
}

// NewBus creates a Bus with a journal of journalSize events.
func NewBus(journalSize uint32, logger *logrus.Logger) *Bus {
	if logger == nil {
		logger = logrus.New()
	}
	return &Bus{
		streams: make(map[Type]*Stream),
		journal: NewJournal(journalSize),
		logger:  logger,
	}
}

// Subscribe installs l as the listener for t, replacing any previous one, and
// returns a function removing it. The returned function is a no-op once l has
// been replaced.
func (b *Bus) Subscribe(t Type, l Listener) (unsubscribe func()) {
	s := NewStream("event-"+string(t), DefaultStreamCapacity, l)

	b.mu.Lock()
	prev := b.streams[t]
	b.streams[t] = s
	b.mu.Unlock()

	if prev != nil {
		b.logger.WithField("type", t).Debug("Replacing event listener")
		prev.Close()
	}

	return func() {
		b.mu.Lock()
		if b.streams[t] == s {
			delete(b.streams, t)
		}
		b.mu.Unlock()
		s.Close()
	}
}

// Emit records e and hands it to the listener for its type, if any.
// Never blocks on the listener.
func (b *Bus) Emit(e Event) {
	if err := b.journal.Record(e); err != nil {
		b.logger.WithError(err).Warn("Failed to journal event")
	}

	b.mu.Lock()
	s := b.streams[e.Type]
	b.mu.Unlock()

	if s != nil {
		s.Push(e)
	}
}

// HasListener reports whether t has an active listener.
func (b *Bus) HasListener(t Type) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.streams[t]
	return ok
}

// Recent returns the journaled events, oldest first, without consuming them.
func (b *Bus) Recent() []Event {
	return b.journal.Snapshot()
}

// Close removes every listener.
func (b *Bus) Close() {
	b.mu.Lock()
	streams := b.streams
	b.streams = make(map[Type]*Stream)
	b.mu.Unlock()

	for _, s := range streams {
		s.Close()
	}
}
