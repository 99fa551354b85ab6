package event

import (
	"sync"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// DefaultJournalSize bounds the number of events kept for RecentEvents.
const DefaultJournalSize = 256

// Journal keeps the most recent events, overwriting the oldest when full.
type Journal struct {
	mu  sync.Mutex
	buf mpmc.RichOverlappedRingBuffer[Event]
}

// NewJournal creates a Journal holding up to size events.
func NewJournal(size uint32) *Journal {
	if size == 0 {
		size = DefaultJournalSize
	}
	return &Journal{buf: mpmc.NewOverlappedRingBuffer[Event](size)}
}

// Record appends e.
func (j *Journal) Record(e Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.buf.EnqueueM(e)
	return err
}

// Snapshot returns the recorded events, oldest first, and keeps them.
func (j *Journal) Snapshot() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := j.drain()
	// The ring has no peek; put the events back in order.
	for _, e := range out {
		if _, err := j.buf.EnqueueM(e); err != nil {
			break
		}
	}
	return out
}

func (j *Journal) drain() []Event {
	var out []Event
	for !j.buf.IsEmpty() {
		e, err := j.buf.Dequeue()
		if err != nil {
			break
		}
		out = append(out, e)
	}
	return out
}
