// Package driver defines the boundary between the session controller and a
// radio backend.
//
// A Driver never blocks its caller on radio traffic: every command returns as
// soon as it has been issued and the outcome is reported later through the
// Delegate. Delegate methods may be invoked from any goroutine; the session
// controller re-posts them onto its own execution context.
package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/blite/internal/adapter"
	"github.com/srg/blite/internal/device"
)

// ErrNotConnected is returned by GATT commands issued without a live link.
var ErrNotConnected = errors.New("device not connected")

// ErrUnknownCharacteristic is returned when a GATT command names a
// characteristic absent from the discovered profile.
var ErrUnknownCharacteristic = errors.New("characteristic not discovered")

// ErrConnectAborted is reported through ConnectFailed for a dial ended by
// CancelConnection. It wraps context.Canceled.
var ErrConnectAborted = fmt.Errorf("connection attempt aborted: %w", context.Canceled)

// Delegate receives asynchronous driver outcomes.
type Delegate interface {
	AdapterStateChanged(state adapter.State)
	DeviceDiscovered(adv device.Advertisement)

	Connected(address string)
	ConnectFailed(address string, err error)
	Disconnected(address string, err error)

	ServicesDiscovered(services []device.ServiceInfo, err error)
	CharacteristicRead(service, characteristic string, value []byte, err error)
	CharacteristicWritten(service, characteristic string, err error)
	MTUChanged(mtu int, err error)
	NotificationStateChanged(service, characteristic string, enabled bool, err error)
	NotificationReceived(service, characteristic string, value []byte)
}

// Driver is a single-radio BLE central backend.
type Driver interface {
	// Name identifies the backend in logs and configuration.
	Name() string

	// Start opens the radio and begins reporting adapter state.
	Start(ctx context.Context, d Delegate) error
	// Close releases the radio. Outstanding commands produce no further callbacks.
	Close() error

	// Casing is the identifier casing the platform stack reports.
	Casing() device.Casing

	Scanning() bool
	StartScan() error
	StopScan() error

	Connect(address string) error
	// CancelConnection aborts a pending connect or tears down the link. An
	// aborted dial reports ConnectFailed with ErrConnectAborted unless a newer
	// Connect was issued in the meantime, in which case it reports nothing.
	CancelConnection() error

	DiscoverServices() error
	Read(service, characteristic string) error
	// Write submits data. With withResponse=false the delegate is not called.
	Write(service, characteristic string, data []byte, withResponse bool) error
	RequestMTU(size int) error
	SetNotify(service, characteristic string, enable bool) error
}

// Factory builds a Driver by backend name.
type Factory func(name string) (Driver, error)
