// Package goble is the go-ble backed radio driver: HCI sockets on linux,
// CoreBluetooth on darwin.
//
// go-ble's API is blocking, so every command runs on its own named goroutine
// and reports back through the driver.Delegate.
package goble

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blite/internal/adapter"
	"github.com/srg/blite/internal/device"
	"github.com/srg/blite/internal/driver"
	"github.com/srg/blite/internal/groutine"
	"github.com/srg/blite/internal/power"
)

// Name is the backend name used in configuration
const Name = "goble"

var (
	errScanInProgress    = errors.New("scan already in progress")
	errConnectInProgress = errors.New("connection already in progress or established")
	errNotStarted        = errors.New("driver not started")
)

// gattClient is the part of ble.Client the driver uses
type gattClient interface {
	Addr() ble.Addr
	DiscoverProfile(force bool) (*ble.Profile, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	ExchangeMTU(rxMTU int) (txMTU int, err error)
	CancelConnection() error
}

// link is one established connection
type link struct {
	address string
	client  gattClient

	mu    sync.Mutex
	chars map[charKey]*ble.Characteristic

	once sync.Once
	done chan struct{}
}

// Driver implements driver.Driver on top of a ble.Device.
type Driver struct {
	logger *logrus.Logger
	casing device.Casing
	power  power.Watcher

	// dial is swappable so tests can hand back a GATT client double
	dial func(ctx context.Context, dev ble.Device, address string) (gattClient, error)

	mu         sync.Mutex
	dev        ble.Device
	delegate   driver.Delegate
	ctx        context.Context
	cancel     context.CancelFunc
	scanCancel context.CancelFunc
	scanGen    uint64
	dialCancel context.CancelFunc
	dialGen    uint64
	link       *link

	scanning atomic.Bool
}

// New creates a go-ble driver. A nil watcher falls back to reporting ON once
// the radio opens.
func New(watcher power.Watcher, logger *logrus.Logger) *Driver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Driver{
		logger: logger,
		casing: device.PlatformCasing(runtime.GOOS),
		power:  watcher,
		dial:   dialDevice,
	}
}

func dialDevice(ctx context.Context, dev ble.Device, address string) (gattClient, error) {
	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (d *Driver) Name() string { return Name }

func (d *Driver) Casing() device.Casing { return d.casing }

// Start opens the radio. A radio that is powered off is not an error: the
// adapter state is reported as OFF and the radio is reopened on first use.
func (d *Driver) Start(ctx context.Context, delegate driver.Delegate) error {
	d.mu.Lock()
	d.delegate = delegate
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()

	_, devErr := d.device()
	if devErr != nil && !errors.Is(devErr, device.ErrBluetoothOff) {
		return devErr
	}

	if d.power != nil {
		err := d.power.Start(d.ctx, delegate.AdapterStateChanged)
		if err == nil {
			return nil
		}
		d.logger.WithError(err).Warn("Adapter power watcher unavailable, inferring state from radio")
	}

	if devErr != nil {
		delegate.AdapterStateChanged(adapter.Off)
	} else {
		delegate.AdapterStateChanged(adapter.On)
	}
	return nil
}

// device returns the open radio, opening it if needed.
func (d *Driver) device() (ble.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev != nil {
		return d.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		err = NormalizeError(err)
		d.logger.WithError(err).Debug("Failed to open BLE device")
		return nil, err
	}
	d.dev = dev
	return dev, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	if d.scanCancel != nil {
		d.scanCancel()
		d.scanCancel = nil
	}
	l := d.link
	d.link = nil
	d.delegate = nil
	dev := d.dev
	d.dev = nil
	d.mu.Unlock()

	d.scanning.Store(false)

	var errs []error
	if l != nil {
		l.once.Do(func() { close(l.done) })
		if err := l.client.CancelConnection(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.power != nil {
		if err := d.power.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if dev != nil {
		if err := dev.Stop(); err != nil {
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
	dev, err := d.device()
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.ctx == nil {
		d.mu.Unlock()
		return errNotStarted
	}
	if d.scanCancel != nil {
		d.mu.Unlock()
		return errScanInProgress
	}
	ctx, cancel := context.WithCancel(d.ctx)
	d.scanCancel = cancel
	d.scanGen++
	gen := d.scanGen
	casing := d.casing
	d.mu.Unlock()

	d.scanning.Store(true)
	d.logger.Info("Starting BLE scan")

	groutine.Go(ctx, "goble-scan", func(ctx context.Context) {
		err := dev.Scan(ctx, false, func(a ble.Advertisement) {
			if del := d.currentDelegate(); del != nil {
				del.DeviceDiscovered(newAdvertisement(a, casing))
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			d.logger.WithError(NormalizeError(err)).Warn("BLE scan ended with error")
		}

		d.mu.Lock()
		if d.scanGen == gen {
			d.scanCancel = nil
			d.scanning.Store(false)
		}
		d.mu.Unlock()
		cancel()
	})
	return nil
}

func (d *Driver) StopScan() error {
	d.mu.Lock()
	cancel := d.scanCancel
	d.scanCancel = nil
	d.scanGen++
	d.mu.Unlock()

	d.scanning.Store(false)
	if cancel != nil {
		d.logger.Info("Stopping BLE scan")
		cancel()
	}
	return nil
}

func (d *Driver) Connect(address string) error {
	dev, err := d.device()
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.ctx == nil {
		d.mu.Unlock()
		return errNotStarted
	}
	if d.dialCancel != nil || d.link != nil {
		d.mu.Unlock()
		return errConnectInProgress
	}
	ctx, cancel := context.WithCancel(d.ctx)
	d.dialCancel = cancel
	d.dialGen++
	gen := d.dialGen
	d.mu.Unlock()

	d.logger.WithField("address", address).Info("Connecting to BLE device...")

	groutine.Go(ctx, "goble-dial", func(ctx context.Context) {
		defer cancel()
		client, err := d.dial(ctx, dev, address)

		d.mu.Lock()
		aborted := ctx.Err() != nil
		// A newer Connect means CancelConnection already retired this attempt.
		superseded := d.dialGen != gen
		if !superseded {
			d.dialCancel = nil
		}
		if err == nil && !aborted {
			d.link = &link{address: address, client: client, done: make(chan struct{})}
		}
		l := d.link
		delegate := d.delegate
		d.mu.Unlock()

		switch {
		case aborted:
			if client != nil {
				if cerr := client.CancelConnection(); cerr != nil {
					d.logger.WithError(cerr).Warn("Failed to cancel connection established after abort")
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
			d.logger.WithFields(logrus.Fields{
				"address": address,
				"error":   err,
			}).Warn("Failed to dial BLE device")
			if delegate != nil {
				delegate.ConnectFailed(address, fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err)))
			}
		default:
			d.logger.WithField("address", address).Info("BLE device connected successfully")
			d.watch(l)
			if delegate != nil {
				delegate.Connected(address)
			}
		}
	})
	return nil
}

// watch reports a peripheral-initiated disconnect when the client exposes it.
func (d *Driver) watch(l *link) {
	dc, ok := l.client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		d.logger.Debug("Client does not support Disconnected() channel")
		return
	}
	groutine.Go(context.Background(), "goble-link-monitor", func(ctx context.Context) {
		select {
		case <-dc.Disconnected():
			d.logger.WithField("address", l.address).Warn("Peripheral reported disconnection")
			d.finish(l, driver.ErrNotConnected)
		case <-l.done:
		}
	})
}

// finish retires l and reports the disconnect exactly once.
func (d *Driver) finish(l *link, cause error) {
	first := false
	l.once.Do(func() {
		first = true
		close(l.done)
	})
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
	if d.dialCancel != nil {
		d.dialCancel()
		d.dialCancel = nil
		d.mu.Unlock()
		return nil
	}
	l := d.link
	d.mu.Unlock()

	if l == nil {
		return driver.ErrNotConnected
	}

	d.logger.WithField("address", l.address).Info("Disconnecting BLE device...")
	groutine.Go(context.Background(), "goble-disconnect", func(ctx context.Context) {
		err := NormalizeError(l.client.CancelConnection())
		if err != nil {
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

// profile discovers the peripheral's GATT profile once per link.
func (l *link) profile(casing device.Casing, force bool) ([]device.ServiceInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.chars != nil && !force {
		return nil, nil
	}
	p, err := l.client.DiscoverProfile(true)
	if err != nil {
		return nil, NormalizeError(err)
	}
	var services []device.ServiceInfo
	l.chars, services = indexProfile(p, casing)
	return services, nil
}

func (l *link) characteristic(casing device.Casing, service, characteristic string) (*ble.Characteristic, error) {
	if _, err := l.profile(casing, false); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.chars[keyOf(service, characteristic)]
	if !ok {
		return nil, fmt.Errorf("%w: %v", driver.ErrUnknownCharacteristic,
			&device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, characteristic}})
	}
	return c, nil
}

func (d *Driver) DiscoverServices() error {
	l, delegate, err := d.activeLink()
	if err != nil {
		return err
	}
	groutine.Go(context.Background(), "goble-discover", func(ctx context.Context) {
		services, err := l.profile(d.casing, true)
		if err != nil {
			d.logger.WithError(err).Warn("Failed to discover profile")
		} else {
			d.logger.WithField("services", len(services)).Debug("Profile discovered successfully")
		}
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
	groutine.Go(context.Background(), "goble-read", func(ctx context.Context) {
		var value []byte
		c, err := l.characteristic(d.casing, service, characteristic)
		if err == nil {
			value, err = l.client.ReadCharacteristic(c)
			err = NormalizeError(err)
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
	groutine.Go(context.Background(), "goble-write", func(ctx context.Context) {
		c, err := l.characteristic(d.casing, service, characteristic)
		if err == nil {
			err = NormalizeError(l.client.WriteCharacteristic(c, payload, !withResponse))
		}
		if !withResponse {
			if err != nil {
				d.logger.WithFields(logrus.Fields{
					"characteristic": characteristic,
					"error":          err,
				}).Warn("Write without response failed")
			}
			return
		}
		if delegate != nil {
			delegate.CharacteristicWritten(service, characteristic, err)
		}
	})
	return nil
}

func (d *Driver) RequestMTU(size int) error {
	l, delegate, err := d.activeLink()
	if err != nil {
		return err
	}
	groutine.Go(context.Background(), "goble-mtu", func(ctx context.Context) {
		mtu, err := l.client.ExchangeMTU(size)
		if delegate != nil {
			delegate.MTUChanged(mtu, NormalizeError(err))
		}
	})
	return nil
}

func (d *Driver) SetNotify(service, characteristic string, enable bool) error {
	l, delegate, err := d.activeLink()
	if err != nil {
		return err
	}
	groutine.Go(context.Background(), "goble-notify", func(ctx context.Context) {
		c, err := l.characteristic(d.casing, service, characteristic)
		if err == nil {
			if enable {
				err = l.client.Subscribe(c, useIndication(c), func(data []byte) {
					if del := d.currentDelegate(); del != nil {
						del.NotificationReceived(service, characteristic, append([]byte(nil), data...))
					}
				})
			} else {
				err = l.client.Unsubscribe(c, useIndication(c))
			}
			err = NormalizeError(err)
		}
		if delegate != nil {
			delegate.NotificationStateChanged(service, characteristic, enable, err)
		}
	})
	return nil
}

var _ driver.Driver = (*Driver)(nil)
