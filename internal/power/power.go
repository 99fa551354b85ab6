// Package power watches the host Bluetooth adapter's power state through the
// OS stack directly, independently of the radio backend in use.
package power

import (
	"context"

	"github.com/srg/blite/internal/adapter"
)

// Report receives every observed adapter state, starting with the current one.
type Report func(adapter.State)

// Watcher observes adapter power state.
type Watcher interface {
	// Start reports the current state and then every change until ctx is
	// cancelled or Close is called. It does not block.
	Start(ctx context.Context, report Report) error
	Close() error
}

// Factory builds the platform Watcher; swappable in tests.
var Factory = newPlatformWatcher

// Static is a Watcher that reports one fixed state. Used where the OS offers
// no power notifications.
type Static struct {
	State adapter.State
}

func (s Static) Start(_ context.Context, report Report) error {
	report(s.State)
	return nil
}

func (s Static) Close() error { return nil }
