//go:build linux

package power

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/srg/blite/internal/adapter"
	"github.com/srg/blite/internal/groutine"
)

const (
	bluezBus       = "org.bluez"
	bluezAdapter   = "org.bluez.Adapter1"
	dbusProperties = "org.freedesktop.DBus.Properties"
	defaultHCI     = "hci0"
)

// BlueZ watches org.bluez.Adapter1 over the system bus.
type BlueZ struct {
	Adapter string
	logger  *logrus.Logger

	mu     sync.Mutex
	conn   *dbus.Conn
	sigCh  chan *dbus.Signal
	cancel context.CancelFunc
}

func newPlatformWatcher(logger *logrus.Logger) (Watcher, error) {
	return NewBlueZ(defaultHCI, logger), nil
}

// NewBlueZ creates a watcher for the named adapter (e.g. "hci0").
func NewBlueZ(hci string, logger *logrus.Logger) *BlueZ {
	if logger == nil {
		logger = logrus.New()
	}
	if hci == "" {
		hci = defaultHCI
	}
	return &BlueZ{Adapter: hci, logger: logger}
}

func (b *BlueZ) path() dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + b.Adapter)
}

func (b *BlueZ) Start(ctx context.Context, report Report) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}

	matchRule := fmt.Sprintf(
		"type='signal',sender='%s',interface='%s',member='PropertiesChanged',path='%s'",
		bluezBus, dbusProperties, b.path(),
	)
	if call := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule); call.Err != nil {
		return fmt.Errorf("failed to add signal match: %w", call.Err)
	}

	report(b.currentState(conn))

	sigCh := make(chan *dbus.Signal, 16)
	conn.Signal(sigCh)

	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.conn, b.sigCh, b.cancel = conn, sigCh, cancel
	b.mu.Unlock()

	groutine.Go(ctx, "power-bluez", func(ctx context.Context) {
		defer conn.RemoveSignal(sigCh)
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-sigCh:
				if !ok {
					return
				}
				if state, changed := b.stateFromSignal(sig); changed {
					report(state)
				}
			}
		}
	})
	return nil
}

// currentState prefers PowerState, which distinguishes transitions and
// rfkill blocks, and falls back to Powered on older BlueZ releases.
func (b *BlueZ) currentState(conn *dbus.Conn) adapter.State {
	obj := conn.Object(bluezBus, b.path())

	if v, err := obj.GetProperty(bluezAdapter + ".PowerState"); err == nil {
		if s, ok := v.Value().(string); ok {
			return adapter.FromBlueZ(s)
		}
	}

	v, err := obj.GetProperty(bluezAdapter + ".Powered")
	if err != nil {
		b.logger.WithError(err).WithField("adapter", b.Adapter).Warn("Failed to read adapter power state")
		if strings.Contains(err.Error(), "UnknownObject") {
			return adapter.Unsupported
		}
		return adapter.Unknown
	}
	if powered, ok := v.Value().(bool); ok {
		return adapter.FromPowered(powered)
	}
	return adapter.Unknown
}

func (b *BlueZ) stateFromSignal(sig *dbus.Signal) (adapter.State, bool) {
	if sig.Path != b.path() || sig.Name != dbusProperties+".PropertiesChanged" || len(sig.Body) < 2 {
		return adapter.Unknown, false
	}
	if iface, _ := sig.Body[0].(string); iface != bluezAdapter {
		return adapter.Unknown, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return adapter.Unknown, false
	}
	if v, ok := changed["PowerState"]; ok {
		if s, ok := v.Value().(string); ok {
			return adapter.FromBlueZ(s), true
		}
	}
	if v, ok := changed["Powered"]; ok {
		if powered, ok := v.Value().(bool); ok {
			return adapter.FromPowered(powered), true
		}
	}
	return adapter.Unknown, false
}

// Close stops the signal goroutine. The shared system bus connection stays open.
func (b *BlueZ) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	return nil
}
