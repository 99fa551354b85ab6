package session

import (
	"context"
	"sync"

	"github.com/srg/blite/internal/groutine"
)

// loop is the controller's single execution context: an unbounded FIFO of
// closures drained by one goroutine. Posting never blocks.
type loop struct {
	mu      sync.Mutex
	items   []func()
	wake    chan struct{}
	closed  bool
	started bool
	done    chan struct{}
}

func newLoop() *loop {
	return &loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// start launches the consumer goroutine. Closures posted earlier run first.
func (l *loop) start(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	groutine.Go(ctx, "session-loop", func(ctx context.Context) {
		defer close(l.done)
		for {
			fn, ok := l.next()
			if !ok {
				return
			}
			fn()
		}
	})
}

// next blocks until a closure is available. Returns false once the loop is
// closed and drained.
func (l *loop) next() (func(), bool) {
	for {
		l.mu.Lock()
		if len(l.items) > 0 {
			fn := l.items[0]
			l.items[0] = nil
			l.items = l.items[1:]
			l.mu.Unlock()
			return fn, true
		}
		closed := l.closed
		l.mu.Unlock()

		if closed {
			return nil, false
		}
		<-l.wake
	}
}

// post enqueues fn. Returns false if the loop no longer accepts work.
func (l *loop) post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.items = append(l.items, fn)
	l.mu.Unlock()

	l.signal()
	return true
}

// call runs fn on the loop and waits for it to return.
func (l *loop) call(fn func()) bool {
	done := make(chan struct{})
	if !l.post(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	<-done
	return true
}

// stop rejects further posts, lets queued closures finish and waits for the
// consumer to exit.
func (l *loop) stop() {
	l.mu.Lock()
	l.closed = true
	started := l.started
	l.mu.Unlock()

	l.signal()
	if started {
		<-l.done
	}
}

func (l *loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
