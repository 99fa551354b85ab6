package testutils

import "sync"

// ManualQueue is a hand-cranked execution context: Post records closures from
// any goroutine and Drain runs them, in order, on the calling goroutine.
type ManualQueue struct {
	mu    sync.Mutex
	items []func()
}

func NewManualQueue() *ManualQueue {
	return &ManualQueue{}
}

// Post enqueues fn without running it.
func (q *ManualQueue) Post(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()
}

// Len returns the number of queued closures.
func (q *ManualQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain runs queued closures until the queue is empty, including closures
// posted while draining. Returns how many ran.
func (q *ManualQueue) Drain() int {
	n := 0
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			return n
		}
		fn := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		fn()
		n++
	}
}
