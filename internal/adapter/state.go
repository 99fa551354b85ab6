// Package adapter tracks the local radio's power state and maps the state
// codes of each OS Bluetooth stack onto one canonical enum.
package adapter

import (
	"encoding/json"
	"strings"
)

// State is the canonical adapter power state
type State int

const (
	Unknown State = iota
	On
	Off
	TurningOn
	TurningOff
	Resetting
	Unsupported
	Unauthorized
)

var stateNames = map[State]string{
	Unknown:      "UNKNOWN",
	On:           "ON",
	Off:          "OFF",
	TurningOn:    "TURNING_ON",
	TurningOff:   "TURNING_OFF",
	Resetting:    "RESETTING",
	Unsupported:  "UNSUPPORTED",
	Unauthorized: "UNAUTHORIZED",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return stateNames[Unknown]
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ParseState parses the canonical state name, case-insensitively.
func ParseState(name string) (State, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for s, n := range stateNames {
		if n == name {
			return s, true
		}
	}
	return Unknown, false
}

// FromCoreBluetooth maps a CBManagerState value.
func FromCoreBluetooth(code int) State {
	switch code {
	case 1:
		return Resetting
	case 2:
		return Unsupported
	case 3:
		return Unauthorized
	case 4:
		return Off
	case 5:
		return On
	default:
		return Unknown
	}
}

// Android BluetoothAdapter.STATE_* values
const (
	androidStateOff        = 10
	androidStateTurningOn  = 11
	androidStateOn         = 12
	androidStateTurningOff = 13
)

// FromAndroid maps a BluetoothAdapter.STATE_* value.
func FromAndroid(code int) State {
	switch code {
	case androidStateOff:
		return Off
	case androidStateTurningOn:
		return TurningOn
	case androidStateOn:
		return On
	case androidStateTurningOff:
		return TurningOff
	default:
		return Unknown
	}
}

// FromBlueZ maps the org.bluez.Adapter1 PowerState property.
// An rfkill-blocked adapter ("off-blocked") is reported as Unauthorized.
func FromBlueZ(powerState string) State {
	switch powerState {
	case "on":
		return On
	case "off":
		return Off
	case "off-enabling":
		return TurningOn
	case "on-disabling":
		return TurningOff
	case "off-blocked":
		return Unauthorized
	default:
		return Unknown
	}
}

// FromPowered maps a plain powered flag, for stacks that expose nothing richer.
func FromPowered(powered bool) State {
	if powered {
		return On
	}
	return Off
}

// Permission is the user-facing Bluetooth permission status
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionBlocked Permission = "blocked"
	PermissionUnknown Permission = "unknown"
)

// Permission derives the permission status from the adapter state.
func (s State) Permission() Permission {
	switch s {
	case Unknown:
		return PermissionUnknown
	case Unauthorized:
		return PermissionBlocked
	default:
		return PermissionGranted
	}
}
