package session

import (
	"github.com/srg/blite/internal/adapter"
	"github.com/srg/blite/internal/device"
)

// delegate moves driver callbacks onto the session loop.
type delegate struct {
	c *Controller
}

func (d *delegate) AdapterStateChanged(state adapter.State) {
	d.c.post(func() { d.c.tracker.Update(state) })
}

func (d *delegate) DeviceDiscovered(adv device.Advertisement) {
	d.c.post(func() { d.c.onDeviceDiscovered(adv) })
}

func (d *delegate) Connected(address string) {
	d.c.post(func() { d.c.onConnected(address) })
}

func (d *delegate) ConnectFailed(address string, err error) {
	d.c.post(func() { d.c.onConnectFailed(address, err) })
}

func (d *delegate) Disconnected(address string, err error) {
	d.c.post(func() { d.c.onDisconnected(address, err) })
}

func (d *delegate) ServicesDiscovered(services []device.ServiceInfo, err error) {
	d.c.post(func() { d.c.onServicesDiscovered(services, err) })
}

func (d *delegate) CharacteristicRead(service, characteristic string, value []byte, err error) {
	d.c.post(func() { d.c.onCharacteristicRead(service, characteristic, value, err) })
}

func (d *delegate) CharacteristicWritten(service, characteristic string, err error) {
	d.c.post(func() { d.c.onCharacteristicWritten(service, characteristic, err) })
}

func (d *delegate) MTUChanged(mtu int, err error) {
	d.c.post(func() { d.c.onMTUChanged(mtu, err) })
}

func (d *delegate) NotificationStateChanged(service, characteristic string, enabled bool, err error) {
	d.c.post(func() { d.c.onNotificationStateChanged(service, characteristic, enabled, err) })
}

func (d *delegate) NotificationReceived(service, characteristic string, value []byte) {
	d.c.post(func() { d.c.onNotificationReceived(service, characteristic, value) })
}
