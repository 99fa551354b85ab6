package session

import (
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/blite/internal/device"
	"github.com/srg/blite/internal/event"
	"github.com/srg/blite/internal/pending"
)

// StartScan begins a scan session. The future resolves when the scan stops,
// with every accepted device in discovery order.
func (c *Controller) StartScan(opts ScanOptions) *Future[ScanResult] {
	closed := ScanResult{Devices: []device.Device{}, Error: errClosed()}
	return submit(c, closed, func(f *Future[ScanResult]) {
		c.startScan(opts, f)
	})
}

// StopScan ends the scan session and resolves the pending StartScan.
func (c *Controller) StopScan() *Future[StopScanResult] {
	return submit(c, StopScanResult{Error: errClosed()}, func(f *Future[StopScanResult]) {
		c.stopScan(f)
	})
}

func (c *Controller) startScan(opts ScanOptions, f *Future[ScanResult]) {
	if !c.tracker.IsOn() {
		f.resolve(ScanResult{
			Devices: []device.Device{},
			Error:   device.NewError(device.CodeBLEIsOff, "adapter is %s", c.tracker.State()),
		})
		return
	}
	if c.drv.Scanning() {
		f.resolve(ScanResult{Devices: []device.Device{}, Error: device.ErrIsAlreadyScanning})
		return
	}

	opts.Duration = orDefault(opts.Duration, c.opts.Timeout)
	c.scanOpts = opts
	c.devices = orderedmap.New[string, device.Device]()

	c.registry.Register(pending.Scan, newOperation(f, func(err *device.Error) ScanResult {
		return ScanResult{Devices: []device.Device{}, Error: err}
	}), 0)

	if err := c.drv.StartScan(); err != nil {
		c.logger.WithError(err).Warn("Failed to start scan")
		c.registry.Fail(pending.Scan, device.AsError(err))
		return
	}
	c.scanTimeout.Set(func() { c.stopScan(nil) }, opts.Duration)

	c.logger.WithFields(logrus.Fields{
		"duration": opts.Duration,
		"address":  opts.Address,
		"name":     opts.Name,
	}).Info("Scan started")
}

// stopScan resolves STOP_SCAN through f when it is not nil.
func (c *Controller) stopScan(f *Future[StopScanResult]) {
	c.scanTimeout.Cancel()

	if !c.drv.Scanning() {
		// A scan the driver ended on its own still owes its result.
		c.registry.Resolve(pending.Scan, c.scanResult())
		if f != nil {
			f.resolve(StopScanResult{IsScanning: false, Error: device.ErrIsNotScanning})
		}
		return
	}

	if f != nil {
		c.registry.Register(pending.StopScan, newOperation(f, func(err *device.Error) StopScanResult {
			return StopScanResult{IsScanning: c.drv.Scanning(), Error: err}
		}), c.opts.Timeout)
	}

	err := c.drv.StopScan()
	c.registry.Resolve(pending.Scan, c.scanResult())
	if err != nil {
		c.logger.WithError(err).Warn("Failed to stop scan")
		c.registry.Fail(pending.StopScan, device.AsError(err))
		return
	}

	c.logger.WithField("devices", c.devices.Len()).Info("Scan stopped")
	c.registry.Resolve(pending.StopScan, StopScanResult{IsScanning: c.drv.Scanning()})
}

func (c *Controller) scanResult() ScanResult {
	devices := make([]device.Device, 0, c.devices.Len())
	for p := c.devices.Oldest(); p != nil; p = p.Next() {
		devices = append(devices, p.Value)
	}
	return ScanResult{Devices: devices}
}

func (c *Controller) onDeviceDiscovered(adv device.Advertisement) {
	if !c.registry.Pending(pending.Scan) {
		return
	}

	d := device.DeviceFromAdvertisement(adv)
	if d.Address == "" {
		return
	}
	if c.scanOpts.Address != "" && !sameAddress(d.Address, c.scanOpts.Address) {
		return
	}
	if c.scanOpts.Name != "" && d.Name != c.scanOpts.Name {
		return
	}
	if _, known := c.devices.Get(d.Address); known {
		return
	}

	c.devices.Set(d.Address, d)
	c.logger.WithFields(logrus.Fields{
		"address": d.Address,
		"name":    d.Name,
		"rssi":    d.RSSI,
	}).Debug("Device found")
	c.bus.Emit(event.New(event.DeviceFound, event.DeviceFoundPayload{Device: d}))

	if c.scanOpts.StopOnFirstMatch {
		c.stopScan(nil)
	}
}

// knownDevice looks up a discovered device, tolerating address casing.
func (c *Controller) knownDevice(address string) (device.Device, bool) {
	if d, ok := c.devices.Get(address); ok {
		return d, true
	}
	for p := c.devices.Oldest(); p != nil; p = p.Next() {
		if sameAddress(p.Key, address) {
			return p.Value, true
		}
	}
	return device.Device{}, false
}
