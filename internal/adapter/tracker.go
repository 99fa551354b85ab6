package adapter

import (
	"github.com/sirupsen/logrus"
)

// Listener receives adapter state transitions.
type Listener func(prev, next State)

// Tracker owns the current adapter state and notifies a single listener on
// every transition. Subscribing replaces the previous listener.
// Not synchronized: the owning execution context serializes all calls.
type Tracker struct {
	state    State
	listener Listener
	gen      uint64
	logger   *logrus.Logger
}

// NewTracker creates a Tracker in the Unknown state.
func NewTracker(logger *logrus.Logger) *Tracker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Tracker{state: Unknown, logger: logger}
}

// State returns the current adapter state.
func (t *Tracker) State() State {
	return t.state
}

// IsOn reports whether the radio is usable.
func (t *Tracker) IsOn() bool {
	return t.state == On
}

// Update records next and notifies the listener when it differs from the
// current state. Returns whether the state changed.
func (t *Tracker) Update(next State) bool {
	prev := t.state
	if prev == next {
		return false
	}
	t.state = next

	t.logger.WithFields(logrus.Fields{
		"from": prev,
		"to":   next,
	}).Info("Adapter state changed")

	if t.listener != nil {
		t.listener(prev, next)
	}
	return true
}

// Subscribe installs l as the only listener and returns a function removing
// it. The returned function is a no-op once another listener has replaced l.
func (t *Tracker) Subscribe(l Listener) (unsubscribe func()) {
	t.gen++
	gen := t.gen
	t.listener = l
	return func() {
		if t.gen == gen {
			t.listener = nil
		}
	}
}
