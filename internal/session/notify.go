package session

import (
	"github.com/srg/blite/internal/device"
	"github.com/srg/blite/internal/event"
	"github.com/srg/blite/internal/pending"
)

// NotificationHandler receives values pushed by a subscribed characteristic.
// It runs on the notification dispatcher goroutine, never on the session loop.
type NotificationHandler func(n event.NotificationPayload)

// notifyTarget identifies a notification state change by its ack.
type notifyTarget struct {
	key    string
	enable bool
}

type subscription struct {
	service        string
	characteristic string
	handler        NotificationHandler
}

// EnableNotifications subscribes handler to characteristic. Enabling an
// already subscribed characteristic only replaces its handler.
func (c *Controller) EnableNotifications(service, characteristic string, handler NotificationHandler) *Future[NotificationResult] {
	return submit(c, NotificationResult{Error: errClosed()}, func(f *Future[NotificationResult]) {
		svc, key := c.id(service), c.id(characteristic)
		result := NotificationResult{Service: svc, Characteristic: key}

		if !c.requireConnected(func(err *device.Error) {
			result.Error = err
			f.resolve(result)
		}) {
			return
		}

		sub := &subscription{service: svc, characteristic: key, handler: handler}
		if _, ok := c.subs.Get(key); ok {
			c.subs.Set(key, sub)
			result.IsNotifying = true
			f.resolve(result)
			return
		}

		c.subs.Set(key, sub)
		if c.notifyStream == nil {
			c.notifyStream = event.NewStream("notification-dispatch", event.DefaultStreamCapacity, c.dispatchNotification)
		}

		req := c.notifyAcks.begin(notifyTarget{key: key, enable: true})
		c.registry.Register(pending.Notifications, newOperation(f, func(err *device.Error) NotificationResult {
			// A failed, timed out or superseded enable never leaves a subscription behind.
			c.notifyAcks.abandon(req)
			c.unsubscribe(key)
			r := result
			r.Error = err
			return r
		}), c.opts.Timeout)

		if err := c.drv.SetNotify(svc, key, true); err != nil {
			c.notifyAcks.settle(req)
			c.registry.Fail(pending.Notifications, device.AsError(err))
		}
	})
}

// DisableNotifications removes the subscription for characteristic.
func (c *Controller) DisableNotifications(service, characteristic string) *Future[NotificationResult] {
	return submit(c, NotificationResult{Error: errClosed()}, func(f *Future[NotificationResult]) {
		svc, key := c.id(service), c.id(characteristic)
		result := NotificationResult{Service: svc, Characteristic: key}

		if !c.requireConnected(func(err *device.Error) {
			result.Error = err
			f.resolve(result)
		}) {
			return
		}

		if !c.unsubscribe(key) {
			f.resolve(result)
			return
		}

		req := c.notifyAcks.begin(notifyTarget{key: key, enable: false})
		c.registry.Register(pending.Notifications, newOperation(f, func(err *device.Error) NotificationResult {
			c.notifyAcks.abandon(req)
			r := result
			r.Error = err
			return r
		}), c.opts.Timeout)

		if err := c.drv.SetNotify(svc, key, false); err != nil {
			c.notifyAcks.settle(req)
			c.registry.Fail(pending.Notifications, device.AsError(err))
		}
	})
}

// Subscriptions returns the characteristics with an active subscription.
func (c *Controller) Subscriptions() []string {
	keys := make([]string, 0, c.subs.Len())
	c.subs.Range(func(key string, _ *subscription) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

func (c *Controller) onNotificationStateChanged(service, characteristic string, enabled bool, err error) {
	key := c.id(characteristic)
	if !c.notifyAcks.answer(notifyTarget{key: key, enable: enabled}) {
		c.logger.WithField("characteristic", characteristic).Debug("Dropping notification ack for an abandoned request")
		return
	}

	if err != nil {
		c.registry.Fail(pending.Notifications, device.AsError(err))
		return
	}

	c.registry.Resolve(pending.Notifications, NotificationResult{
		Service:        c.id(service),
		Characteristic: key,
		IsNotifying:    enabled,
	})
}

func (c *Controller) onNotificationReceived(service, characteristic string, value []byte) {
	key := c.id(characteristic)
	if _, ok := c.subs.Get(key); !ok || c.notifyStream == nil {
		c.logger.WithField("characteristic", key).Debug("Dropping notification without subscription")
		return
	}

	n := event.NotificationPayload{
		Service:        c.id(service),
		Characteristic: key,
		Bytes:          value,
	}
	if c.opts.AutoDecodeBytes {
		n.Value = device.BytesToString(value)
	}

	e := event.New(event.Notification, n)
	c.notifyStream.Push(e)
	c.bus.Emit(e)
}

// dispatchNotification runs on the notification stream goroutine.
func (c *Controller) dispatchNotification(e event.Event) {
	n, ok := e.Payload.(event.NotificationPayload)
	if !ok {
		return
	}
	sub, ok := c.subs.Get(n.Characteristic)
	if !ok || sub.handler == nil {
		return
	}
	sub.handler(n)
}

// unsubscribe removes key and closes the dispatcher once no subscription
// remains. Returns whether key was subscribed.
func (c *Controller) unsubscribe(key string) bool {
	if !c.subs.Del(key) {
		return false
	}
	if c.subs.Len() == 0 {
		c.closeNotifyStream()
	}
	return true
}

func (c *Controller) dropSubscriptions() {
	if n := c.subs.Len(); n > 0 {
		c.logger.WithField("count", n).Debug("Dropping notification subscriptions")
	}
	for _, key := range c.Subscriptions() {
		c.subs.Del(key)
	}
	c.closeNotifyStream()
}

func (c *Controller) closeNotifyStream() {
	if c.notifyStream == nil {
		return
	}
	c.notifyStream.Close()
	c.notifyStream = nil
	c.logger.Debug("Notification dispatcher stopped")
}

// notifying reports whether the dispatcher stream is open. Loop only.
func (c *Controller) notifying() bool {
	return c.notifyStream != nil
}
