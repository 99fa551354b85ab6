package testutils

import (
	"context"
	"sync"

	"github.com/srg/blite/internal/adapter"
	"github.com/srg/blite/internal/device"
	"github.com/srg/blite/internal/driver"
)

// FakeDriver is an in-memory driver.Driver. Commands are recorded; outcomes
// are either produced automatically (AutoConnect, AutoAck) or raised by the
// test through the Emit*/Complete* helpers.
type FakeDriver struct {
	mu       sync.Mutex
	delegate driver.Delegate
	casing   device.Casing
	calls    []DelegateCall
	scanning bool
	link     string

	// StartState is reported from Start.
	StartState adapter.State
	// AutoConnect reports Connected for every Connect.
	AutoConnect bool
	// AutoAck answers GATT commands and link teardown from Profile and Values.
	AutoAck bool
	Profile []device.ServiceInfo
	// Values are returned by reads, keyed by characteristic UUID as issued.
	Values map[string][]byte
	// MaxMTU caps negotiated MTUs when AutoAck is set.
	MaxMTU int
	// Advertisements are reported right after StartScan.
	Advertisements []device.Advertisement
	// Errors makes the named command fail synchronously.
	Errors map[string]error
}

var _ driver.Driver = (*FakeDriver)(nil)

func NewFakeDriver(casing device.Casing) *FakeDriver {
	return &FakeDriver{
		casing:     casing,
		StartState: adapter.On,
		Values:     make(map[string][]byte),
		Errors:     make(map[string]error),
		MaxMTU:     247,
	}
}

func (f *FakeDriver) record(method string, args ...any) (driver.Delegate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, DelegateCall{Method: method, Args: args})
	return f.delegate, f.Errors[method]
}

// Calls returns the recorded commands for method, or all of them when
// method is empty.
func (f *FakeDriver) Calls(method string) []DelegateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []DelegateCall
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many times method was called.
func (f *FakeDriver) Count(method string) int {
	return len(f.Calls(method))
}

// SetError makes method fail synchronously with err; nil clears it.
func (f *FakeDriver) SetError(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.Errors, method)
		return
	}
	f.Errors[method] = err
}

func (f *FakeDriver) Name() string { return "fake" }

func (f *FakeDriver) Start(ctx context.Context, d driver.Delegate) error {
	f.mu.Lock()
	f.delegate = d
	state := f.StartState
	f.mu.Unlock()

	if _, err := f.record("Start"); err != nil {
		return err
	}
	d.AdapterStateChanged(state)
	return nil
}

func (f *FakeDriver) Close() error {
	_, err := f.record("Close")
	return err
}

func (f *FakeDriver) Casing() device.Casing { return f.casing }

func (f *FakeDriver) Scanning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanning
}

func (f *FakeDriver) StartScan() error {
	d, err := f.record("StartScan")
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.scanning = true
	ads := f.Advertisements
	f.mu.Unlock()

	for _, adv := range ads {
		d.DeviceDiscovered(adv)
	}
	return nil
}

func (f *FakeDriver) StopScan() error {
	if _, err := f.record("StopScan"); err != nil {
		return err
	}
	f.mu.Lock()
	f.scanning = false
	f.mu.Unlock()
	return nil
}

// EndScan clears the scanning flag without a StopScan command, like a radio
// that stopped on its own.
func (f *FakeDriver) EndScan() {
	f.mu.Lock()
	f.scanning = false
	f.mu.Unlock()
}

func (f *FakeDriver) Connect(address string) error {
	d, err := f.record("Connect", address)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.link = address
	auto := f.AutoConnect
	f.mu.Unlock()

	if auto {
		d.Connected(address)
	}
	return nil
}

func (f *FakeDriver) CancelConnection() error {
	d, err := f.record("CancelConnection")
	if err != nil {
		return err
	}
	f.mu.Lock()
	link := f.link
	f.link = ""
	auto := f.AutoAck
	f.mu.Unlock()

	if link == "" {
		return driver.ErrNotConnected
	}
	if auto {
		d.Disconnected(link, nil)
	}
	return nil
}

// Link returns the address of the link the driver believes is open.
func (f *FakeDriver) Link() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.link
}

func (f *FakeDriver) DiscoverServices() error {
	d, err := f.record("DiscoverServices")
	if err != nil {
		return err
	}
	if f.autoAck() {
		d.ServicesDiscovered(f.Profile, nil)
	}
	return nil
}

func (f *FakeDriver) Read(service, characteristic string) error {
	d, err := f.record("Read", service, characteristic)
	if err != nil {
		return err
	}
	if f.autoAck() {
		f.mu.Lock()
		v := f.Values[characteristic]
		f.mu.Unlock()
		d.CharacteristicRead(service, characteristic, v, nil)
	}
	return nil
}

func (f *FakeDriver) Write(service, characteristic string, data []byte, withResponse bool) error {
	d, err := f.record("Write", service, characteristic, data, withResponse)
	if err != nil {
		return err
	}
	if withResponse && f.autoAck() {
		d.CharacteristicWritten(service, characteristic, nil)
	}
	return nil
}

func (f *FakeDriver) RequestMTU(size int) error {
	d, err := f.record("RequestMTU", size)
	if err != nil {
		return err
	}
	if f.autoAck() {
		mtu := size
		if f.MaxMTU > 0 && mtu > f.MaxMTU {
			mtu = f.MaxMTU
		}
		d.MTUChanged(mtu, nil)
	}
	return nil
}

func (f *FakeDriver) SetNotify(service, characteristic string, enable bool) error {
	d, err := f.record("SetNotify", service, characteristic, enable)
	if err != nil {
		return err
	}
	if f.autoAck() {
		d.NotificationStateChanged(service, characteristic, enable, nil)
	}
	return nil
}

func (f *FakeDriver) autoAck() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.AutoAck
}

func (f *FakeDriver) d() driver.Delegate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delegate
}

// EmitAdapterState reports an adapter transition.
func (f *FakeDriver) EmitAdapterState(state adapter.State) {
	f.d().AdapterStateChanged(state)
}

// EmitAdvertisement reports a discovered peripheral.
func (f *FakeDriver) EmitAdvertisement(adv device.Advertisement) {
	f.d().DeviceDiscovered(adv)
}

// CompleteConnect reports a successful connection.
func (f *FakeDriver) CompleteConnect(address string) {
	f.mu.Lock()
	f.link = address
	f.mu.Unlock()
	f.d().Connected(address)
}

// FailConnect reports a failed connection attempt.
func (f *FakeDriver) FailConnect(address string, err error) {
	f.mu.Lock()
	f.link = ""
	f.mu.Unlock()
	f.d().ConnectFailed(address, err)
}

// DropLink reports a disconnect the session did not ask for.
func (f *FakeDriver) DropLink(address string, err error) {
	f.mu.Lock()
	f.link = ""
	f.mu.Unlock()
	f.d().Disconnected(address, err)
}

func (f *FakeDriver) CompleteDiscovery(services []device.ServiceInfo, err error) {
	f.d().ServicesDiscovered(services, err)
}

func (f *FakeDriver) CompleteRead(service, characteristic string, value []byte, err error) {
	f.d().CharacteristicRead(service, characteristic, value, err)
}

func (f *FakeDriver) CompleteWrite(service, characteristic string, err error) {
	f.d().CharacteristicWritten(service, characteristic, err)
}

func (f *FakeDriver) CompleteMTU(mtu int, err error) {
	f.d().MTUChanged(mtu, err)
}

func (f *FakeDriver) CompleteNotify(service, characteristic string, enabled bool, err error) {
	f.d().NotificationStateChanged(service, characteristic, enabled, err)
}

// Notify pushes a characteristic value.
func (f *FakeDriver) Notify(service, characteristic string, value []byte) {
	f.d().NotificationReceived(service, characteristic, value)
}
