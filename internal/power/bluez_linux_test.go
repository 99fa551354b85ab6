//go:build linux

package power

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/srg/blite/internal/adapter"
	"github.com/stretchr/testify/assert"
)

func TestBlueZ_StateFromSignal(t *testing.T) {
	w := NewBlueZ("hci1", nil)

	signal := func(path dbus.ObjectPath, iface string, changed map[string]dbus.Variant) *dbus.Signal {
		return &dbus.Signal{
			Path: path,
			Name: dbusProperties + ".PropertiesChanged",
			Body: []interface{}{iface, changed, []string{}},
		}
	}

	tests := []struct {
		name     string
		sig      *dbus.Signal
		expected adapter.State
		changed  bool
	}{
		{
			name:     "power state string wins",
			sig:      signal("/org/bluez/hci1", bluezAdapter, map[string]dbus.Variant{"PowerState": dbus.MakeVariant("off-enabling")}),
			expected: adapter.TurningOn,
			changed:  true,
		},
		{
			name:     "powered flag",
			sig:      signal("/org/bluez/hci1", bluezAdapter, map[string]dbus.Variant{"Powered": dbus.MakeVariant(false)}),
			expected: adapter.Off,
			changed:  true,
		},
		{
			name: "other adapter is ignored",
			sig:  signal("/org/bluez/hci0", bluezAdapter, map[string]dbus.Variant{"Powered": dbus.MakeVariant(true)}),
		},
		{
			name: "device interface is ignored",
			sig:  signal("/org/bluez/hci1", "org.bluez.Device1", map[string]dbus.Variant{"Powered": dbus.MakeVariant(true)}),
		},
		{
			name: "unrelated property",
			sig:  signal("/org/bluez/hci1", bluezAdapter, map[string]dbus.Variant{"Discovering": dbus.MakeVariant(true)}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, changed := w.stateFromSignal(tt.sig)
			assert.Equal(t, tt.changed, changed)
			if tt.changed {
				assert.Equal(t, tt.expected, state)
			}
		})
	}
}
