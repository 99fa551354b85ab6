package session

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/blite/internal/device"
	"github.com/srg/blite/internal/pending"
)

// DiscoverServices resolves with the peripheral's GATT profile, narrowed by
// opts.Services.
func (c *Controller) DiscoverServices(opts DiscoverServicesOptions) *Future[ServicesResult] {
	return submit(c, ServicesResult{Error: errClosed()}, func(f *Future[ServicesResult]) {
		if !c.requireConnected(func(err *device.Error) { f.resolve(ServicesResult{Error: err}) }) {
			return
		}

		c.discovery = c.normalizeFilter(opts.Services)
		c.registry.Register(pending.DiscoverServices, newOperation(f, func(err *device.Error) ServicesResult {
			return ServicesResult{Error: err}
		}), orDefault(opts.Timeout, c.opts.Timeout))

		if err := c.drv.DiscoverServices(); err != nil {
			c.registry.Fail(pending.DiscoverServices, device.AsError(err))
		}
	})
}

// Read reads a characteristic value.
func (c *Controller) Read(service, characteristic string) *Future[TransactionResult] {
	return submit(c, TransactionResult{Error: errClosed()}, func(f *Future[TransactionResult]) {
		if !c.requireConnected(func(err *device.Error) { f.resolve(TransactionResult{Error: err}) }) {
			return
		}

		key := c.id(characteristic)
		req := c.reads.begin(key)
		c.registry.Register(pending.Read, newOperation(f, func(err *device.Error) TransactionResult {
			c.reads.abandon(req)
			return transactionError(err)
		}), c.opts.Timeout)

		if err := c.drv.Read(c.id(service), key); err != nil {
			c.reads.settle(req)
			c.registry.Fail(pending.Read, device.AsError(err))
		}
	})
}

// Write writes data and resolves on the peripheral's acknowledgement.
func (c *Controller) Write(service, characteristic string, data []byte) *Future[TransactionResult] {
	return submit(c, TransactionResult{Error: errClosed()}, func(f *Future[TransactionResult]) {
		if !c.requireConnected(func(err *device.Error) { f.resolve(TransactionResult{Error: err}) }) {
			return
		}

		key := c.id(characteristic)
		req := c.writes.begin(key)
		c.writePayload = data
		c.registry.Register(pending.Write, newOperation(f, func(err *device.Error) TransactionResult {
			c.writes.abandon(req)
			return transactionError(err)
		}), c.opts.Timeout)

		if err := c.drv.Write(c.id(service), key, data, true); err != nil {
			c.writes.settle(req)
			c.registry.Fail(pending.Write, device.AsError(err))
		}
	})
}

// WriteWithoutResponse submits data and resolves once the driver accepted it.
func (c *Controller) WriteWithoutResponse(service, characteristic string, data []byte) *Future[TransactionResult] {
	return submit(c, TransactionResult{Error: errClosed()}, func(f *Future[TransactionResult]) {
		if !c.requireConnected(func(err *device.Error) { f.resolve(TransactionResult{Error: err}) }) {
			return
		}

		if err := c.drv.Write(c.id(service), c.id(characteristic), data, false); err != nil {
			f.resolve(TransactionResult{Error: device.AsError(err)})
			return
		}
		f.resolve(c.transaction(data))
	})
}

// WriteString writes s, one byte per rune.
func (c *Controller) WriteString(service, characteristic, s string) *Future[TransactionResult] {
	return c.Write(service, characteristic, device.StringToBytes(s))
}

// WriteStringWithoutResponse is WriteWithoutResponse for text payloads.
func (c *Controller) WriteStringWithoutResponse(service, characteristic, s string) *Future[TransactionResult] {
	return c.WriteWithoutResponse(service, characteristic, device.StringToBytes(s))
}

// RequestMTU negotiates the ATT MTU. A non-positive size requests DefaultMTU.
func (c *Controller) RequestMTU(size int) *Future[MTUResult] {
	if size <= 0 {
		size = DefaultMTU
	}
	return submit(c, MTUResult{Error: errClosed()}, func(f *Future[MTUResult]) {
		if !c.requireConnected(func(err *device.Error) { f.resolve(MTUResult{Error: err}) }) {
			return
		}

		c.registry.Register(pending.MTU, newOperation(f, func(err *device.Error) MTUResult {
			return MTUResult{Error: err}
		}), c.opts.Timeout)

		if err := c.drv.RequestMTU(size); err != nil {
			c.registry.Fail(pending.MTU, device.AsError(err))
		}
	})
}

func (c *Controller) requireConnected(fail func(*device.Error)) bool {
	if c.connState == device.Connected {
		return true
	}
	fail(device.NewError(device.CodeIsNotConnected, "connection is %s", c.connState))
	return false
}

func (c *Controller) transaction(value []byte) TransactionResult {
	r := TransactionResult{Bytes: value}
	if c.opts.AutoDecodeBytes {
		r.Value = device.BytesToString(value)
	}
	return r
}

func transactionError(err *device.Error) TransactionResult {
	return TransactionResult{Error: err}
}

func (c *Controller) onServicesDiscovered(services []device.ServiceInfo, err error) {
	if err != nil {
		c.registry.Fail(pending.DiscoverServices, device.AsError(err))
		return
	}

	filtered := filterServices(services, c.discovery, c.id)
	c.logger.WithFields(logrus.Fields{
		"services": len(services),
		"kept":     len(filtered),
	}).Debug("Services discovered")
	c.registry.Resolve(pending.DiscoverServices, ServicesResult{Services: filtered})
}

func (c *Controller) onCharacteristicRead(service, characteristic string, value []byte, err error) {
	if !c.reads.answer(c.id(characteristic)) {
		c.logger.WithField("characteristic", characteristic).Debug("Dropping read for an abandoned request")
		return
	}
	if err != nil {
		c.registry.Fail(pending.Read, device.AsError(err))
		return
	}
	c.registry.Resolve(pending.Read, c.transaction(value))
}

func (c *Controller) onCharacteristicWritten(service, characteristic string, err error) {
	if !c.writes.answer(c.id(characteristic)) {
		c.logger.WithField("characteristic", characteristic).Debug("Dropping write ack for an abandoned request")
		return
	}
	if err != nil {
		c.registry.Fail(pending.Write, device.AsError(err))
		return
	}
	c.registry.Resolve(pending.Write, c.transaction(c.writePayload))
}

func (c *Controller) onMTUChanged(mtu int, err error) {
	if err != nil {
		c.registry.Fail(pending.MTU, device.AsError(err))
		return
	}
	c.registry.Resolve(pending.MTU, MTUResult{MTU: mtu})
}

func (c *Controller) normalizeFilter(services map[string][]string) map[string][]string {
	if len(services) == 0 {
		return nil
	}
	out := make(map[string][]string, len(services))
	for svc, chars := range services {
		ids := make([]string, len(chars))
		for i, ch := range chars {
			ids[i] = c.id(ch)
		}
		out[c.id(svc)] = ids
	}
	return out
}

// filterServices keeps the services named in filter. An empty characteristic
// list keeps the whole service; a nil filter keeps everything.
func filterServices(services []device.ServiceInfo, filter map[string][]string, id func(string) string) []device.ServiceInfo {
	out := make([]device.ServiceInfo, 0, len(services))
	for _, svc := range services {
		svc.UUID = id(svc.UUID)
		svc.Characteristics = append([]device.CharacteristicInfo(nil), svc.Characteristics...)
		for i := range svc.Characteristics {
			svc.Characteristics[i].UUID = id(svc.Characteristics[i].UUID)
		}

		if filter == nil {
			out = append(out, svc)
			continue
		}
		wanted, ok := filter[svc.UUID]
		if !ok {
			continue
		}
		if len(wanted) == 0 {
			out = append(out, svc)
			continue
		}

		keep := make(map[string]bool, len(wanted))
		for _, ch := range wanted {
			keep[ch] = true
		}
		chars := make([]device.CharacteristicInfo, 0, len(wanted))
		for _, ch := range svc.Characteristics {
			if keep[ch.UUID] {
				chars = append(chars, ch)
			}
		}
		svc.Characteristics = chars
		out = append(out, svc)
	}
	return out
}
