package session

import (
	"context"
	"testing"
	"time"

	"github.com/srg/blite/internal/event"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// await blocks until f resolves, failing the test after waitTimeout.
func await[T any](t *testing.T, f *Future[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	v, err := f.Wait(ctx)
	require.NoError(t, err, "future did not resolve")
	return v
}

// eventSink collects events delivered to a bus subscription.
type eventSink struct {
	ch chan event.Event
}

func newEventSink() *eventSink {
	return &eventSink{ch: make(chan event.Event, 64)}
}

func (s *eventSink) listener(e event.Event) {
	s.ch <- e
}

func (s *eventSink) next(t *testing.T) event.Event {
	t.Helper()
	select {
	case e := <-s.ch:
		return e
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for event")
		return event.Event{}
	}
}

// none asserts no event arrives within d.
func (s *eventSink) none(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case e := <-s.ch:
		t.Fatalf("unexpected event %s %+v", e.Type, e.Payload)
	case <-time.After(d):
	}
}
