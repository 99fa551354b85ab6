package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/blite/internal/device"
	"github.com/srg/blite/internal/driver"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the link dropped while a command was using it.
	ErrConnectionLost = errors.New("connection lost")
	// ErrAdapterNotReady indicates the adapter never reported ON.
	ErrAdapterNotReady = errors.New("bluetooth adapter is not ready")
)

// FormatUserError turns session and driver errors into a short message.
func FormatUserError(err error) string {
	var se *device.Error
	if errors.As(err, &se) {
		switch se.Code {
		case device.CodeBLEIsOff:
			return "Bluetooth is turned off or unavailable"
		case device.CodeDeviceNotFound:
			return fmt.Sprintf("device not found (%s); run 'blite scan' to list nearby devices", se.Msg)
		case device.CodeIsNotConnected:
			return "device is not connected"
		case device.CodeTimeout:
			return fmt.Sprintf("operation timed out: %s", se.Msg)
		}
		return se.Error()
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out"
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off"
	case errors.Is(err, driver.ErrNotConnected):
		return "device is not connected"
	}
	return err.Error()
}

// resultError converts a result's Error field into an error, keeping nil as nil.
func resultError(e *device.Error) error {
	if e == nil {
		return nil
	}
	return e
}
