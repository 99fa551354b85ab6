package session

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/srg/blite/internal/device"
	"github.com/srg/blite/internal/driver"
	"github.com/srg/blite/internal/pending"
)

// Connect opens a link to a device discovered by a previous scan.
func (c *Controller) Connect(address string, opts ConnectOptions) *Future[ConnectResult] {
	return submit(c, ConnectResult{Error: errClosed()}, func(f *Future[ConnectResult]) {
		c.connect(address, opts, f)
	})
}

// Disconnect tears down the link. Resolves immediately when there is none.
func (c *Controller) Disconnect() *Future[ConnectResult] {
	return submit(c, ConnectResult{}, func(f *Future[ConnectResult]) {
		c.disconnect(f)
	})
}

func (c *Controller) connect(address string, opts ConnectOptions, f *Future[ConnectResult]) {
	if !c.tracker.IsOn() {
		f.resolve(ConnectResult{Error: device.NewError(device.CodeBLEIsOff, "adapter is %s", c.tracker.State())})
		return
	}

	switch c.connState {
	case device.Connected:
		if sameAddress(c.address, address) {
			f.resolve(ConnectResult{IsConnected: true})
			return
		}
		f.resolve(ConnectResult{
			IsConnected: true,
			Error:       device.NewError(device.CodeAlreadyConnected, "connected to %s", c.address),
		})
		return
	case device.Connecting:
		f.resolve(ConnectResult{
			Error: device.NewError(device.CodeConnectionInProgress, "connecting to %s", c.address),
		})
		return
	}

	d, ok := c.knownDevice(address)
	if !ok {
		f.resolve(ConnectResult{Error: device.NewError(device.CodeDeviceNotFound, "%s was not discovered", address)})
		return
	}

	c.registry.Register(pending.Connect, newOperation(f, func(err *device.Error) ConnectResult {
		return ConnectResult{IsConnected: c.connState == device.Connected, Error: err}
	}), 0)

	c.address = d.Address
	c.abortRequested = false
	c.transition(device.Connecting)

	if err := c.drv.Connect(d.Address); err != nil {
		c.logger.WithError(err).WithField("address", d.Address).Warn("Failed to initiate connection")
		c.registry.Fail(pending.Connect, connectionError(err))
		c.transition(device.Disconnected)
		return
	}

	wait := orDefault(opts.Timeout, c.opts.Timeout)
	c.connectTimeout.Set(c.onConnectTimeout, wait)

	c.logger.WithFields(logrus.Fields{
		"address": d.Address,
		"name":    d.Name,
		"timeout": wait,
	}).Info("Connecting")
}

func (c *Controller) disconnect(f *Future[ConnectResult]) {
	if c.connState == device.Disconnected {
		c.connectTimeout.Cancel()
		f.resolve(ConnectResult{IsConnected: false})
		return
	}

	c.registry.Register(pending.Disconnect, newOperation(f, func(err *device.Error) ConnectResult {
		return ConnectResult{IsConnected: c.connState == device.Connected, Error: err}
	}), c.opts.Timeout)

	c.abortRequested = c.connState == device.Connecting
	if err := c.drv.CancelConnection(); err != nil {
		if errors.Is(err, driver.ErrNotConnected) {
			c.handleDisconnected(nil)
			return
		}
		c.logger.WithError(err).Warn("Failed to cancel connection")
		c.registry.Fail(pending.Disconnect, device.AsError(err))
	}
}

func (c *Controller) onConnected(address string) {
	if c.connState != device.Connecting || !sameAddress(address, c.address) {
		c.logger.WithField("address", address).Warn("Ignoring late connection, cancelling link")
		if err := c.drv.CancelConnection(); err != nil && !errors.Is(err, driver.ErrNotConnected) {
			c.logger.WithError(err).Debug("Failed to cancel late connection")
		}
		return
	}

	c.connectTimeout.Cancel()
	c.connState = device.Connected
	c.registry.Resolve(pending.Connect, ConnectResult{IsConnected: true})
	c.emitConnectionState()
}

func (c *Controller) onConnectFailed(address string, err error) {
	if c.connState != device.Connecting || !sameAddress(address, c.address) {
		c.logger.WithError(err).WithField("address", address).Debug("Ignoring stale connection failure")
		return
	}
	if errors.Is(err, context.Canceled) && !c.abortRequested {
		// An attempt abandoned on timeout finishing after the retry began.
		c.logger.WithField("address", address).Debug("Ignoring abort of an abandoned connection attempt")
		return
	}

	c.logger.WithError(err).WithField("address", address).Warn("Connection failed")
	c.connectTimeout.Cancel()
	c.registry.Fail(pending.Connect, connectionError(err))
	// A Disconnect issued while connecting turns into an aborted dial.
	c.registry.Resolve(pending.Disconnect, ConnectResult{IsConnected: false})
	c.transition(device.Disconnected)
}

func (c *Controller) onDisconnected(address string, err error) {
	if c.address != "" && !sameAddress(address, c.address) {
		c.logger.WithField("address", address).Debug("Ignoring disconnect of a previous link")
		return
	}
	c.handleDisconnected(err)
}

func (c *Controller) handleDisconnected(err error) {
	c.logger.WithError(err).WithField("address", c.address).Info("Disconnected")

	c.connectTimeout.Cancel()
	c.registry.Fail(pending.Connect, &device.Error{
		Code:  device.CodeConnectionFailed,
		Msg:   "link dropped while connecting",
		Cause: err,
	})
	c.registry.Resolve(pending.Disconnect, ConnectResult{IsConnected: false})
	c.registry.FailAllExcept(device.NewError(device.CodeIsNotConnected, "link dropped"), pending.Scan, pending.StopScan)
	c.dropSubscriptions()
	c.forgetRequests()
	c.transition(device.Disconnected)
}

func (c *Controller) onConnectTimeout() {
	c.logger.WithField("address", c.address).Warn("Connection attempt timed out")
	if c.teardownLink() {
		c.emitConnectionState()
	}
	c.registry.Fail(pending.Connect, device.NewError(device.CodeDeviceNotFound, "%s did not respond", c.address))
}

// teardownLink cancels the driver link without waiting for its disconnect
// callback and marks the session DISCONNECTED without emitting. Returns
// whether the state changed.
func (c *Controller) teardownLink() bool {
	c.connectTimeout.Cancel()
	if c.connState == device.Disconnected {
		return false
	}

	if err := c.drv.CancelConnection(); err != nil && !errors.Is(err, driver.ErrNotConnected) {
		c.logger.WithError(err).Warn("Failed to cancel connection")
	}
	c.dropSubscriptions()
	c.connState = device.Disconnected
	return true
}

// forgetRequests clears the answers owed by the previous link.
func (c *Controller) forgetRequests() {
	c.reads.reset()
	c.writes.reset()
	c.notifyAcks.reset()
}

func connectionError(err error) *device.Error {
	if e := device.AsError(err); e.Code == device.CodeBLEIsOff {
		return e
	}
	return &device.Error{Code: device.CodeConnectionFailed, Cause: err}
}
