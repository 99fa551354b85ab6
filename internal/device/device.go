package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Code is the symbolic error code surfaced in every resolved result payload
type Code string

const (
	CodeBLEIsOff             Code = "BLE_IS_OFF"
	CodeIsAlreadyScanning    Code = "IS_ALREADY_SCANNING"
	CodeIsNotScanning        Code = "IS_NOT_SCANNING"
	CodeDeviceNotFound       Code = "DEVICE_NOT_FOUND"
	CodeConnectionFailed     Code = "CONNECTION_FAILED"
	CodeIsNotConnected       Code = "IS_NOT_CONNECTED"
	CodeAlreadyConnected     Code = "ALREADY_CONNECTED"
	CodeConnectionInProgress Code = "CONNECTION_IN_PROGRESS"
	CodeTimeout              Code = "OPERATION_TIMEOUT"
	CodeSuperseded           Code = "OPERATION_SUPERSEDED"
	CodeOperationFailed      Code = "OPERATION_FAILED"
)

// Error is a BLE session error identified by its Code.
// Msg adds context and Cause keeps the underlying driver error, if any.
type Error struct {
	Code  Code
	Msg   string
	Cause error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	s := string(e.Code)
	if e.Msg != "" {
		s = fmt.Sprintf("%s: %s", s, e.Msg)
	}
	if e.Cause != nil {
		s = fmt.Sprintf("%s: %v", s, e.Cause)
	}
	return s
}

// Is allows errors.Is to compare Error values by Code
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// MarshalJSON renders the error as its bare code, matching the payload shape consumers expect
func (e *Error) MarshalJSON() ([]byte, error) {
	if e == nil {
		return []byte("null"), nil
	}
	return json.Marshal(string(e.Code))
}

// Predefined sentinel errors, compare with errors.Is
var (
	ErrBLEIsOff             = &Error{Code: CodeBLEIsOff}
	ErrIsAlreadyScanning    = &Error{Code: CodeIsAlreadyScanning}
	ErrIsNotScanning        = &Error{Code: CodeIsNotScanning}
	ErrDeviceNotFound       = &Error{Code: CodeDeviceNotFound}
	ErrConnectionFailed     = &Error{Code: CodeConnectionFailed}
	ErrIsNotConnected       = &Error{Code: CodeIsNotConnected}
	ErrAlreadyConnected     = &Error{Code: CodeAlreadyConnected}
	ErrConnectionInProgress = &Error{Code: CodeConnectionInProgress}
	ErrTimeout              = &Error{Code: CodeTimeout}
	ErrSuperseded           = &Error{Code: CodeSuperseded}
	ErrOperationFailed      = &Error{Code: CodeOperationFailed}
)

// Driver-level errors, normalized by the radio backends
var (
	ErrBluetoothOff = errors.New("bluetooth is turned off")
	ErrUnsupported  = errors.New("unsupported")
)

// NewError creates an Error with a context message
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// AsError converts any error into an *Error.
// Errors that are already *Error pass through; everything else becomes OPERATION_FAILED wrapping the cause.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, ErrBluetoothOff) {
		return &Error{Code: CodeBLEIsOff, Cause: err}
	}
	return &Error{Code: CodeOperationFailed, Cause: err}
}

// HasCode reports whether err is an *Error with the given code
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// NotFoundError represents an error when a GATT resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // [serviceUUID] or [serviceUUID, charUUID]
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState is the state of the single active peripheral link
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

func (s ConnectionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Device is a peripheral seen during a scan session
type Device struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	RSSI    int    `json:"rssi"`
}

// DisplayName returns the advertised name, falling back to the address
func (d Device) DisplayName() string {
	if strings.TrimSpace(d.Name) == "" {
		return d.Address
	}
	return d.Name
}

// Advertisement is what a radio driver reports for every discovery callback
type Advertisement interface {
	LocalName() string
	Addr() string
	RSSI() int
	Services() []string
	ManufacturerData() []byte
	Connectable() bool
}

// DeviceFromAdvertisement creates the session's Device record for an advertisement
func DeviceFromAdvertisement(adv Advertisement) Device {
	return Device{
		Address: adv.Addr(),
		Name:    strings.TrimRight(adv.LocalName(), "\x00"),
		RSSI:    adv.RSSI(),
	}
}

// CharacteristicInfo describes a discovered GATT characteristic
type CharacteristicInfo struct {
	UUID       string   `json:"uuid"`
	Properties []string `json:"properties,omitempty"`
}

// ServiceInfo describes a discovered GATT service and its characteristics
type ServiceInfo struct {
	UUID            string               `json:"uuid"`
	Characteristics []CharacteristicInfo `json:"characteristics"`
}

// Property names reported in CharacteristicInfo.Properties
const (
	PropRead                 = "read"
	PropWrite                = "write"
	PropWriteWithoutResponse = "writeWithoutResponse"
	PropNotify               = "notify"
	PropIndicate             = "indicate"
)
