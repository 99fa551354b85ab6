// Package tinygo is the radio driver backed by tinygo.org/x/bluetooth:
// BlueZ over D-Bus on linux, CoreBluetooth on darwin, WinRT on windows.
package tinygo

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/blite/internal/adapter"
	"github.com/srg/blite/internal/device"
	"github.com/srg/blite/internal/driver"
	"github.com/srg/blite/internal/groutine"
	"github.com/srg/blite/internal/power"
	"tinygo.org/x/bluetooth"
)

// Name is the backend name used in configuration
const Name = "tinygo"

// maxAttributeLen is the largest value an ATT attribute can carry
const maxAttributeLen = 512

var (
	errBusy           = errors.New("connection already in progress or established")
	errScanInProgress = errors.New("scan already in progress")
	errNotStarted     = errors.New("driver not started")
)

type charKey struct {
	service        string
	characteristic string
}

func keyOf(service, characteristic string) charKey {
	return charKey{service: device.NormalizeUUID(service), characteristic: device.NormalizeUUID(characteristic)}
}

// radio is the part of bluetooth.Adapter the driver drives.
type radio interface {
	Enable() error
	SetConnectHandler(h func(address string, connected bool))
	Scan(found func(device.Advertisement)) error
	StopScan() error
	Connect(address string) (peer, error)
}

// peer is a connected bluetooth.Device.
type peer interface {
	Disconnect() error
	DiscoverServices(uuids []bluetooth.UUID) ([]bluetooth.DeviceService, error)
}

// adapterRadio binds radio to a tinygo adapter.
type adapterRadio struct {
	adapter *bluetooth.Adapter
}

func (r adapterRadio) Enable() error { return r.adapter.Enable() }

func (r adapterRadio) SetConnectHandler(h func(address string, connected bool)) {
	r.adapter.SetConnectHandler(func(dev bluetooth.Device, connected bool) {
		h(dev.Address.String(), connected)
	})
}

func (r adapterRadio) Scan(found func(device.Advertisement)) error {
	return r.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		found(scanAdvertisement{result: result})
	})
}

func (r adapterRadio) StopScan() error { return r.adapter.StopScan() }

func (r adapterRadio) Connect(address string) (peer, error) {
	var addr bluetooth.Address
	addr.Set(address)
	dev, err := r.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

// dialAttempt is one Connect call.
type dialAttempt struct {
	gen     uint64
	aborted bool
}

type link struct {
	address string
	dev     peer

	mu    sync.Mutex
	chars map[charKey]bluetooth.DeviceCharacteristic

	once sync.Once
}

// Driver implements driver.Driver on a tinygo bluetooth.Adapter.
type Driver struct {
	radio  radio
	power  power.Watcher
	casing device.Casing
	logger *logrus.Logger

	mu       sync.Mutex
	delegate driver.Delegate
	ctx      context.Context
	cancel   context.CancelFunc
	scanGen  uint64
	dialGen  uint64
	dial     *dialAttempt
	link     *link

	scanning atomic.Bool
}

// New creates a driver on bluetooth.DefaultAdapter.
func New(watcher power.Watcher, logger *logrus.Logger) *Driver {
	return newDriver(adapterRadio{adapter: bluetooth.DefaultAdapter}, watcher, logger)
}

func newDriver(r radio, watcher power.Watcher, logger *logrus.Logger) *Driver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Driver{
		radio:  r,
		power:  watcher,
		casing: device.PlatformCasing(runtime.GOOS),
		logger: logger,
	}
}

func (d *Driver) Name() string { return Name }

func (d *Driver) Casing() device.Casing { return d.casing }

func (d *Driver) Start(ctx context.Context, delegate driver.Delegate) error {
	d.mu.Lock()
	d.delegate = delegate
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()

	enableErr := d.radio.Enable()
	if enableErr != nil {
		d.logger.WithError(enableErr).Warn("Failed to enable tinygo adapter")
	}

	d.radio.SetConnectHandler(func(address string, connected bool) {
		if connected {
			return
		}
		d.mu.Lock()
		l := d.link
		d.mu.Unlock()
		if l != nil && strings.EqualFold(l.address, address) {
			d.finish(l, driver.ErrNotConnected)
		}
	})

	if d.power != nil {
		err := d.power.Start(d.ctx, delegate.AdapterStateChanged)
		if err == nil {
			return nil
		}
		d.logger.WithError(err).Warn("Adapter power watcher unavailable, inferring state from radio")
	}

	if enableErr != nil {
		delegate.AdapterStateChanged(adapter.Off)
	} else {
		delegate.AdapterStateChanged(adapter.On)
	}
	return nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	l := d.link
	d.link = nil
	d.delegate = nil
	d.scanGen++
	wasScanning := d.scanning.Swap(false)
	d.mu.Unlock()

	var errs []error
	if wasScanning {
		if err := d.radio.StopScan(); err != nil {
			errs = append(errs, err)
		}
	}
	if l != nil {
		l.once.Do(func() {})
		if err := l.dev.Disconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.power != nil {
		if err := d.power.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Driver) currentDelegate() driver.Delegate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delegate
}

func (d *Driver) Scanning() bool {
	return d.scanning.Load()
}

func (d *Driver) StartScan() error {
	d.mu.Lock()
	if d.ctx == nil {
		d.mu.Unlock()
		return errNotStarted
	}
	if d.scanning.Load() {
		d.mu.Unlock()
		return errScanInProgress
	}
	d.scanGen++
	gen := d.scanGen
	d.scanning.Store(true)
	ctx := d.ctx
	d.mu.Unlock()

	d.logger.Info("Starting BLE scan")

	groutine.Go(ctx, "tinygo-scan", func(ctx context.Context) {
		err := d.radio.Scan(func(adv device.Advertisement) {
			if del := d.currentDelegate(); del != nil {
				del.DeviceDiscovered(adv)
			}
		})
		if err != nil {
			d.logger.WithError(err).Warn("BLE scan ended with error")
		}

		d.mu.Lock()
		if d.scanGen == gen {
			d.scanning.Store(false)
		}
		d.mu.Unlock()
	})
	return nil
}

func (d *Driver) StopScan() error {
	d.mu.Lock()
	d.scanGen++
	wasScanning := d.scanning.Swap(false)
	d.mu.Unlock()

	if !wasScanning {
		return nil
	}
	d.logger.Info("Stopping BLE scan")
	return d.radio.StopScan()
}

// Connect dials address. tinygo cannot interrupt a dial, so CancelConnection
// only marks the attempt aborted and the link is dropped once it completes.
func (d *Driver) Connect(address string) error {
	d.mu.Lock()
	if d.ctx == nil {
		d.mu.Unlock()
		return errNotStarted
	}
	if d.dial != nil || d.link != nil {
		d.mu.Unlock()
		return errBusy
	}
	d.dialGen++
	attempt := &dialAttempt{gen: d.dialGen}
	d.dial = attempt
	ctx := d.ctx
	d.mu.Unlock()

	d.logger.WithField("address", address).Info("Connecting to BLE device...")

	groutine.Go(ctx, "tinygo-dial", func(ctx context.Context) {
		dev, err := d.radio.Connect(address)

		d.mu.Lock()
		aborted := attempt.aborted || ctx.Err() != nil
		superseded := d.dialGen != attempt.gen
		if d.dial == attempt {
			d.dial = nil
		}
		if err == nil && !aborted {
			d.link = &link{address: address, dev: dev}
		}
		delegate := d.delegate
		d.mu.Unlock()

		switch {
		case aborted:
			if dev != nil {
				if derr := dev.Disconnect(); derr != nil {
					d.logger.WithError(derr).Warn("Failed to drop connection established after abort")
				}
			}
			if superseded {
				d.logger.WithField("address", address).Debug("Dropping result of an abandoned dial")
				return
			}
			if delegate != nil {
				delegate.ConnectFailed(address, driver.ErrConnectAborted)
			}
		case err != nil:
			if delegate != nil {
				delegate.ConnectFailed(address, fmt.Errorf("failed to connect to device with address %q: %w", address, err))
			}
		default:
			d.logger.WithField("address", address).Info("BLE device connected successfully")
			if delegate != nil {
				delegate.Connected(address)
			}
		}
	})
	return nil
}

func (d *Driver) finish(l *link, cause error) {
	first := false
	l.once.Do(func() { first = true })
	if !first {
		return
	}

	d.mu.Lock()
	if d.link == l {
		d.link = nil
	}
	delegate := d.delegate
	d.mu.Unlock()

	if delegate != nil {
		delegate.Disconnected(l.address, cause)
	}
}

func (d *Driver) CancelConnection() error {
	d.mu.Lock()
	if d.dial != nil {
		d.dial.aborted = true
		d.dial = nil
		d.mu.Unlock()
		return nil
	}
	l := d.link
	d.mu.Unlock()

	if l == nil {
		return driver.ErrNotConnected
	}
	groutine.Go(context.Background(), "tinygo-disconnect", func(ctx context.Context) {
		if err := l.dev.Disconnect(); err != nil {
			d.logger.WithError(err).Warn("BLE device disconnected with errors")
		}
		d.finish(l, nil)
	})
	return nil
}

func (d *Driver) activeLink() (*link, driver.Delegate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.link == nil {
		return nil, nil, driver.ErrNotConnected
	}
	return d.link, d.delegate, nil
}

// discover walks every service and characteristic of the link.
func (l *link) discover(casing device.Casing) ([]device.ServiceInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	svcs, err := l.dev.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}

	chars := make(map[charKey]bluetooth.DeviceCharacteristic)
	services := make([]device.ServiceInfo, 0, len(svcs))
	for i := range svcs {
		svc := &svcs[i]
		found, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("discover characteristics of %s: %w", svc.UUID().String(), err)
		}
		info := device.ServiceInfo{UUID: device.FormatID(svc.UUID().String(), casing)}
		for _, c := range found {
			chars[keyOf(svc.UUID().String(), c.UUID().String())] = c
			info.Characteristics = append(info.Characteristics, device.CharacteristicInfo{
				UUID: device.FormatID(c.UUID().String(), casing),
			})
		}
		services = append(services, info)
	}
	l.chars = chars
	return services, nil
}

func (l *link) characteristic(casing device.Casing, service, characteristic string) (bluetooth.DeviceCharacteristic, error) {
	l.mu.Lock()
	discovered := l.chars != nil
	l.mu.Unlock()
	if !discovered {
		if _, err := l.discover(casing); err != nil {
			return bluetooth.DeviceCharacteristic{}, err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.chars[keyOf(service, characteristic)]
	if !ok {
		return c, fmt.Errorf("%w: %v", driver.ErrUnknownCharacteristic,
			&device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, characteristic}})
	}
	return c, nil
}

func (d *Driver) DiscoverServices() error {
	l, delegate, err := d.activeLink()
	if err != nil {
		return err
	}
	groutine.Go(context.Background(), "tinygo-discover", func(ctx context.Context) {
		services, err := l.discover(d.casing)
		if delegate != nil {
			delegate.ServicesDiscovered(services, err)
		}
	})
	return nil
}

func (d *Driver) Read(service, characteristic string) error {
	l, delegate, err := d.activeLink()
	if err != nil {
		return err
	}
	groutine.Go(context.Background(), "tinygo-read", func(ctx context.Context) {
		var value []byte
		c, err := l.characteristic(d.casing, service, characteristic)
		if err == nil {
			buf := make([]byte, maxAttributeLen)
			var n int
			n, err = c.Read(buf)
			value = buf[:n]
		}
		if delegate != nil {
			delegate.CharacteristicRead(service, characteristic, value, err)
		}
	})
	return nil
}

func (d *Driver) Write(service, characteristic string, data []byte, withResponse bool) error {
	l, delegate, err := d.activeLink()
	if err != nil {
		return err
	}
	payload := append([]byte(nil), data...)
	groutine.Go(context.Background(), "tinygo-write", func(ctx context.Context) {
		c, err := l.characteristic(d.casing, service, characteristic)
		if err == nil {
			if withResponse {
				_, err = c.Write(payload)
			} else {
				_, err = c.WriteWithoutResponse(payload)
			}
		}
		if !withResponse {
			if err != nil {
				d.logger.WithError(err).WithField("characteristic", characteristic).Warn("Write without response failed")
			}
			return
		}
		if delegate != nil {
			delegate.CharacteristicWritten(service, characteristic, err)
		}
	})
	return nil
}

// RequestMTU reports the MTU the stack negotiated on its own; tinygo exposes
// no explicit exchange, so size is advisory.
func (d *Driver) RequestMTU(size int) error {
	l, delegate, err := d.activeLink()
	if err != nil {
		return err
	}
	groutine.Go(context.Background(), "tinygo-mtu", func(ctx context.Context) {
		mtu, err := l.mtu(d.casing)
		if delegate != nil {
			delegate.MTUChanged(mtu, err)
		}
	})
	return nil
}

func (l *link) mtu(casing device.Casing) (int, error) {
	l.mu.Lock()
	discovered := l.chars != nil
	l.mu.Unlock()
	if !discovered {
		if _, err := l.discover(casing); err != nil {
			return 0, err
		}
	}

	l.mu.Lock()
	var first *bluetooth.DeviceCharacteristic
	for _, c := range l.chars {
		c := c
		first = &c
		break
	}
	l.mu.Unlock()

	if first == nil {
		return 0, errors.New("no characteristic to query MTU from")
	}
	mtu, err := first.GetMTU()
	return int(mtu), err
}

func (d *Driver) SetNotify(service, characteristic string, enable bool) error {
	l, delegate, err := d.activeLink()
	if err != nil {
		return err
	}
	groutine.Go(context.Background(), "tinygo-notify", func(ctx context.Context) {
		c, err := l.characteristic(d.casing, service, characteristic)
		if err == nil {
			if enable {
				err = c.EnableNotifications(func(buf []byte) {
					if del := d.currentDelegate(); del != nil {
						del.NotificationReceived(service, characteristic, append([]byte(nil), buf...))
					}
				})
			} else {
				err = c.EnableNotifications(nil)
			}
		}
		if delegate != nil {
			delegate.NotificationStateChanged(service, characteristic, enable, err)
		}
	})
	return nil
}

// scanAdvertisement adapts bluetooth.ScanResult to device.Advertisement
type scanAdvertisement struct {
	result bluetooth.ScanResult
}

func (a scanAdvertisement) LocalName() string        { return a.result.LocalName() }
func (a scanAdvertisement) Addr() string             { return a.result.Address.String() }
func (a scanAdvertisement) RSSI() int                { return int(a.result.RSSI) }
func (a scanAdvertisement) Services() []string       { return nil }
func (a scanAdvertisement) ManufacturerData() []byte { return nil }
func (a scanAdvertisement) Connectable() bool        { return true }

var _ driver.Driver = (*Driver)(nil)
