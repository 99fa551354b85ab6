package session

import (
	"context"
	"sync"

	"github.com/srg/blite/internal/device"
)

// Future is the caller's handle on an asynchronous operation. It resolves
// exactly once; operation errors travel inside the result value.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func resolvedFuture[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.resolve(v)
	return f
}

func (f *Future[T]) resolve(v T) bool {
	first := false
	f.once.Do(func() {
		first = true
		f.value = v
		close(f.done)
	})
	return first
}

// Wait blocks until the operation resolves or ctx ends. The only error it
// returns is ctx.Err().
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the value without blocking; ok is false while pending.
func (f *Future[T]) Result() (value T, ok bool) {
	select {
	case <-f.done:
		return f.value, true
	default:
		var zero T
		return zero, false
	}
}

// operation binds a Future to the pending registry. onError shapes the
// result for a failure, so every kind resolves with its own payload type.
type operation[T any] struct {
	future  *Future[T]
	onError func(*device.Error) T
}

func newOperation[T any](f *Future[T], onError func(*device.Error) T) *operation[T] {
	return &operation[T]{future: f, onError: onError}
}

func (o *operation[T]) Resolve(payload any) {
	v, ok := payload.(T)
	if !ok {
		o.future.resolve(o.onError(device.NewError(device.CodeOperationFailed, "unexpected payload %T", payload)))
		return
	}
	o.future.resolve(v)
}

func (o *operation[T]) Fail(err *device.Error) {
	o.future.resolve(o.onError(err))
}
