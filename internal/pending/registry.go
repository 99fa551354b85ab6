// Package pending keeps the single-slot-per-kind registry of in-flight
// session operations.
//
// Every registered Operation is resolved or failed exactly once. Whichever of
// a driver callback, a timeout or an explicit call reaches the registry first
// wins and clears the slot; later calls for the same kind are no-ops. The
// registry is not synchronized: all methods, and the Poster handed to New,
// must belong to the same single-consumer execution context.
package pending

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blite/internal/device"
	"github.com/srg/blite/internal/timeout"
)

// Operation is the resolver side of a pending call.
type Operation interface {
	// Resolve completes the operation with a kind-specific payload.
	Resolve(payload any)
	// Fail completes the operation with an error payload.
	Fail(err *device.Error)
}

type entry struct {
	op      Operation
	timeout *timeout.Timeout
}

// Registry tracks at most one Operation per Kind.
type Registry struct {
	post    timeout.Poster
	entries map[Kind]*entry
	logger  *logrus.Logger
}

// New creates an empty Registry. post must enqueue onto the registry's
// execution context; it is used to deliver timeout firings.
func New(post timeout.Poster, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		post:    post,
		entries: make(map[Kind]*entry),
		logger:  logger,
	}
}

// Register installs op for kind. A positive d arms a timeout that fails op
// with OPERATION_TIMEOUT. An operation already pending for kind is failed with
// OPERATION_SUPERSEDED first, so it still resolves exactly once.
func (r *Registry) Register(kind Kind, op Operation, d time.Duration) {
	if prev := r.take(kind); prev != nil {
		r.logger.WithField("kind", kind).Debug("Superseding pending operation")
		prev.op.Fail(device.NewError(device.CodeSuperseded, "%s", kind))
	}

	e := &entry{op: op}
	if d > 0 {
		e.timeout = timeout.New(r.post)
		e.timeout.Set(func() {
			if r.entries[kind] != e {
				return
			}
			r.logger.WithFields(logrus.Fields{
				"kind":    kind,
				"timeout": d,
			}).Debug("Pending operation timed out")
			r.Fail(kind, device.NewError(device.CodeTimeout, "%s", kind))
		}, d)
	}
	r.entries[kind] = e
}

// Resolve completes the operation pending for kind with payload.
// Returns false when nothing was pending.
func (r *Registry) Resolve(kind Kind, payload any) bool {
	e := r.take(kind)
	if e == nil {
		return false
	}
	e.op.Resolve(payload)
	return true
}

// Fail completes the operation pending for kind with err.
// Returns false when nothing was pending.
func (r *Registry) Fail(kind Kind, err *device.Error) bool {
	e := r.take(kind)
	if e == nil {
		return false
	}
	e.op.Fail(err)
	return true
}

// FailAll fails every pending operation with err.
func (r *Registry) FailAll(err *device.Error) int {
	return r.FailAllExcept(err)
}

// FailAllExcept fails every pending operation whose kind is not listed in
// keep. Operations are failed in Kind order.
func (r *Registry) FailAllExcept(err *device.Error, keep ...Kind) int {
	skip := make(map[Kind]bool, len(keep))
	for _, k := range keep {
		skip[k] = true
	}

	n := 0
	for _, k := range r.Kinds() {
		if skip[k] {
			continue
		}
		if r.Fail(k, err) {
			n++
		}
	}
	return n
}

// Pending reports whether an operation is registered for kind.
func (r *Registry) Pending(kind Kind) bool {
	_, ok := r.entries[kind]
	return ok
}

// Len returns the number of pending operations.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Kinds returns the occupied kinds in Kind order.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.entries))
	for k := range r.entries {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (r *Registry) take(kind Kind) *entry {
	e, ok := r.entries[kind]
	if !ok {
		return nil
	}
	delete(r.entries, kind)
	if e.timeout != nil {
		e.timeout.Cancel()
	}
	return e
}
