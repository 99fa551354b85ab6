// Package event delivers session events to subscribers.
//
// Each event type has at most one active listener. Listeners run on their own
// goroutine fed by an overwrite-oldest ring, so a slow listener loses old
// events instead of stalling the session loop.
package event

import (
	"time"

	"github.com/srg/blite/internal/adapter"
	"github.com/srg/blite/internal/device"
)

// Type names an event stream
type Type string

const (
	ConnectionState Type = "CONNECTION_STATE"
	AdapterState    Type = "ADAPTER_STATE"
	DeviceFound     Type = "DEVICE_FOUND"
	Notification    Type = "NOTIFICATION"
)

// Types lists every event type.
var Types = []Type{ConnectionState, AdapterState, DeviceFound, Notification}

// Event is a one-shot push to a subscriber. Payload is one of the *Payload
// types below, matching Type.
type Event struct {
	Type    Type      `json:"type"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// ConnectionStatePayload accompanies ConnectionState events.
type ConnectionStatePayload struct {
	State   device.ConnectionState `json:"state"`
	Address string                 `json:"address,omitempty"`
}

// AdapterStatePayload accompanies AdapterState events.
type AdapterStatePayload struct {
	State adapter.State `json:"state"`
}

// DeviceFoundPayload accompanies DeviceFound events.
type DeviceFoundPayload struct {
	Device device.Device `json:"device"`
}

// NotificationPayload accompanies Notification events.
// Value holds the decoded text only when byte auto-decoding is enabled.
type NotificationPayload struct {
	Service        string `json:"service"`
	Characteristic string `json:"characteristic"`
	Value          string `json:"value,omitempty"`
	Bytes          []byte `json:"bytes"`
}

// Listener consumes events.
type Listener func(Event)

// New builds an event stamped with the current time.
func New(t Type, payload any) Event {
	return Event{Type: t, Time: time.Now(), Payload: payload}
}
