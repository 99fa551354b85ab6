package testutils

import (
	"testing"
	"time"

	"github.com/srg/blite/internal/adapter"
	"github.com/srg/blite/internal/device"
)

// DelegateCall is one recorded driver.Delegate invocation.
type DelegateCall struct {
	Method string
	Args   []any
}

// Err returns the trailing error argument, if any.
func (c DelegateCall) Err() error {
	if len(c.Args) == 0 {
		return nil
	}
	err, _ := c.Args[len(c.Args)-1].(error)
	return err
}

// RecordingDelegate implements driver.Delegate by recording every call.
type RecordingDelegate struct {
	calls chan DelegateCall
}

func NewRecordingDelegate() *RecordingDelegate {
	return &RecordingDelegate{calls: make(chan DelegateCall, 256)}
}

func (r *RecordingDelegate) record(method string, args ...any) {
	r.calls <- DelegateCall{Method: method, Args: args}
}

// Next waits for the next call whose method matches, discarding others.
func (r *RecordingDelegate) Next(t *testing.T, method string) DelegateCall {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case c := <-r.calls:
			if c.Method == method {
				return c
			}
		case <-deadline:
			t.Fatalf("timed out waiting for delegate call %s", method)
			return DelegateCall{}
		}
	}
}

// None asserts no call arrives within d.
func (r *RecordingDelegate) None(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case c := <-r.calls:
		t.Fatalf("unexpected delegate call %s %v", c.Method, c.Args)
	case <-time.After(d):
	}
}

func (r *RecordingDelegate) AdapterStateChanged(state adapter.State) {
	r.record("AdapterStateChanged", state)
}

func (r *RecordingDelegate) DeviceDiscovered(adv device.Advertisement) {
	r.record("DeviceDiscovered", adv)
}

func (r *RecordingDelegate) Connected(address string) {
	r.record("Connected", address)
}

func (r *RecordingDelegate) ConnectFailed(address string, err error) {
	r.record("ConnectFailed", address, err)
}

func (r *RecordingDelegate) Disconnected(address string, err error) {
	r.record("Disconnected", address, err)
}

func (r *RecordingDelegate) ServicesDiscovered(services []device.ServiceInfo, err error) {
	r.record("ServicesDiscovered", services, err)
}

func (r *RecordingDelegate) CharacteristicRead(service, characteristic string, value []byte, err error) {
	r.record("CharacteristicRead", service, characteristic, value, err)
}

func (r *RecordingDelegate) CharacteristicWritten(service, characteristic string, err error) {
	r.record("CharacteristicWritten", service, characteristic, err)
}

func (r *RecordingDelegate) MTUChanged(mtu int, err error) {
	r.record("MTUChanged", mtu, err)
}

func (r *RecordingDelegate) NotificationStateChanged(service, characteristic string, enabled bool, err error) {
	r.record("NotificationStateChanged", service, characteristic, enabled, err)
}

func (r *RecordingDelegate) NotificationReceived(service, characteristic string, value []byte) {
	r.record("NotificationReceived", service, characteristic, value)
}
