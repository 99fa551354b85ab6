// Package timeout provides a cancellable deferred invocation bound to a
// single execution context.
//
// The timer itself runs on the runtime's timer goroutine, but the callback is
// never invoked there: firing only posts a closure through the Poster, and the
// closure re-checks the arming generation before running. A Cancel issued on
// the execution context therefore also suppresses a timer that already fired
// but whose closure is still queued.
package timeout

import (
	"time"
)

// Poster enqueues fn on the owning execution context. It must be safe to call
// from any goroutine.
type Poster func(fn func())

// Timeout arms one callback at a time. All methods must be called from the
// execution context the Poster feeds.
type Timeout struct {
	post  Poster
	timer *time.Timer
	gen   uint64
}

// New creates a Timeout that delivers firings through post.
func New(post Poster) *Timeout {
	return &Timeout{post: post}
}

// Set arms callback to run once after d, replacing any armed callback.
// A non-positive d leaves the Timeout disarmed.
func (t *Timeout) Set(callback func(), d time.Duration) {
	t.Cancel()
	if d <= 0 || callback == nil {
		return
	}

	gen := t.gen
	t.timer = time.AfterFunc(d, func() {
		t.post(func() {
			if t.gen != gen {
				return
			}
			t.disarm()
			callback()
		})
	})
}

// Cancel disarms the Timeout. Safe to call when nothing is armed.
func (t *Timeout) Cancel() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.disarm()
}

// Armed reports whether a callback is pending.
func (t *Timeout) Armed() bool {
	return t.timer != nil
}

func (t *Timeout) disarm() {
	t.timer = nil
	t.gen++
}
