// Package session implements the BLE session controller: one adapter, at most
// one scan and at most one connected peripheral per process.
//
// Every public operation, driver callback and timeout firing is serialized on
// a single loop goroutine. Operations return a Future immediately; failures
// are reported in the result's Error field.
package session

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/blite/internal/adapter"
	"github.com/srg/blite/internal/device"
	"github.com/srg/blite/internal/driver"
	"github.com/srg/blite/internal/event"
	"github.com/srg/blite/internal/pending"
	"github.com/srg/blite/internal/timeout"
)

// Controller owns the session state. Fields below the loop marker are only
// touched from the loop goroutine.
type Controller struct {
	opts   Options
	logger *logrus.Logger
	drv    driver.Driver
	casing device.Casing
	loop   *loop
	bus    *event.Bus

	// subscriptions are written on the loop and read by the notification
	// dispatcher goroutine.
	subs *hashmap.Map[string, *subscription]

	closed  atomic.Bool
	started atomic.Bool

	// loop-owned
	registry       *pending.Registry
	tracker        *adapter.Tracker
	connState      device.ConnectionState
	address        string
	connectTimeout *timeout.Timeout
	scanTimeout    *timeout.Timeout
	scanOpts       ScanOptions
	devices        *orderedmap.OrderedMap[string, device.Device]
	discovery      map[string][]string
	abortRequested bool
	reads          *inflight[string]
	writes         *inflight[string]
	writePayload   []byte
	notifyAcks     *inflight[notifyTarget]
	notifyStream   *event.Stream
}

// New creates a Controller bound to drv. The loop starts immediately; the
// radio is opened by Start.
func New(drv driver.Driver, opts Options) *Controller {
	opts = opts.withDefaults()

	casing := drv.Casing()
	if opts.Casing != nil {
		casing = *opts.Casing
	}

	c := &Controller{
		opts:       opts,
		logger:     opts.Logger,
		drv:        drv,
		casing:     casing,
		loop:       newLoop(),
		bus:        event.NewBus(opts.JournalSize, opts.Logger),
		subs:       hashmap.New[string, *subscription](),
		tracker:    adapter.NewTracker(opts.Logger),
		devices:    orderedmap.New[string, device.Device](),
		reads:      newInflight[string](),
		writes:     newInflight[string](),
		notifyAcks: newInflight[notifyTarget](),
	}
	c.registry = pending.New(c.post, opts.Logger)
	c.connectTimeout = timeout.New(c.post)
	c.scanTimeout = timeout.New(c.post)
	c.tracker.Subscribe(c.onAdapterTransition)

	c.loop.start(context.Background())
	return c
}

func (c *Controller) post(fn func()) {
	if !c.loop.post(fn) {
		c.logger.Debug("Session loop closed, dropping work item")
	}
}

// Start opens the radio. Adapter state is reported through the driver
// delegate from then on.
func (c *Controller) Start(ctx context.Context) error {
	if c.closed.Load() {
		return device.NewError(device.CodeBLEIsOff, "session closed")
	}
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}

	c.logger.WithField("driver", c.drv.Name()).Info("Starting BLE session")
	if err := c.drv.Start(ctx, &delegate{c: c}); err != nil {
		c.started.Store(false)
		return err
	}
	return nil
}

// Close destroys the session, stops the loop and releases the driver.
func (c *Controller) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.loop.call(func() { c.destroy() })
	c.loop.stop()
	c.bus.Close()

	var err error
	if c.started.Load() {
		err = c.drv.Close()
	}
	c.logger.Info("BLE session closed")
	return err
}

// Destroy stops any scan, tears down the link and fails every pending
// operation with BLE_IS_OFF. The controller stays usable afterwards.
func (c *Controller) Destroy() *Future[DestroyResult] {
	return submit(c, DestroyResult{IsDestroyed: true}, func(f *Future[DestroyResult]) {
		f.resolve(c.destroy())
	})
}

// Subscribe installs l as the only listener for t and returns a function
// removing it.
func (c *Controller) Subscribe(t event.Type, l event.Listener) (unsubscribe func()) {
	return c.bus.Subscribe(t, l)
}

// RecentEvents returns the last journaled events, oldest first.
func (c *Controller) RecentEvents() []event.Event {
	return c.bus.Recent()
}

// AdapterState returns the last reported adapter state.
func (c *Controller) AdapterState() adapter.State {
	return query(c, func() adapter.State { return c.tracker.State() })
}

// IsEnabled reports whether the adapter is ON.
func (c *Controller) IsEnabled() bool {
	return c.AdapterState() == adapter.On
}

// PermissionStatus derives the Bluetooth permission from the adapter state.
func (c *Controller) PermissionStatus() adapter.Permission {
	return c.AdapterState().Permission()
}

func (c *Controller) ConnectionState() device.ConnectionState {
	return query(c, func() device.ConnectionState { return c.connState })
}

func (c *Controller) IsConnected() bool {
	return c.ConnectionState() == device.Connected
}

// ConnectedAddress returns the address of the current or pending link.
func (c *Controller) ConnectedAddress() string {
	return query(c, func() string {
		if c.connState == device.Disconnected {
			return ""
		}
		return c.address
	})
}

// Casing is the identifier casing applied to GATT identifiers.
func (c *Controller) Casing() device.Casing {
	return c.casing
}

// submit runs fn on the loop. Once the loop is closed the future resolves
// with onClosed.
func submit[T any](c *Controller, onClosed T, fn func(f *Future[T])) *Future[T] {
	f := newFuture[T]()
	if !c.loop.post(func() { fn(f) }) {
		f.resolve(onClosed)
	}
	return f
}

// query reads loop-owned state. After the loop has stopped nothing mutates
// that state, so it is read directly.
func query[T any](c *Controller, fn func() T) T {
	var v T
	if !c.loop.call(func() { v = fn() }) {
		v = fn()
	}
	return v
}

func errClosed() *device.Error {
	return device.NewError(device.CodeBLEIsOff, "session closed")
}

func (c *Controller) id(uuid string) string {
	return device.FormatID(uuid, c.casing)
}

func sameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

// transition moves the link to state and emits CONNECTION_STATE when it changed.
func (c *Controller) transition(state device.ConnectionState) {
	if c.connState == state {
		return
	}
	c.connState = state
	c.emitConnectionState()
}

func (c *Controller) emitConnectionState() {
	c.logger.WithFields(logrus.Fields{
		"state":   c.connState,
		"address": c.address,
	}).Info("Connection state changed")
	c.bus.Emit(event.New(event.ConnectionState, event.ConnectionStatePayload{
		State:   c.connState,
		Address: c.address,
	}))
}

func (c *Controller) onAdapterTransition(prev, next adapter.State) {
	c.bus.Emit(event.New(event.AdapterState, event.AdapterStatePayload{State: next}))
	if next == adapter.Off {
		c.logger.Warn("Bluetooth turned off, destroying session")
		c.destroy()
	}
}

// destroy must run on the loop.
func (c *Controller) destroy() DestroyResult {
	c.stopScan(nil)
	c.teardownLink()
	c.connState = device.Disconnected
	c.emitConnectionState()
	c.devices = orderedmap.New[string, device.Device]()
	if n := c.registry.FailAll(device.NewError(device.CodeBLEIsOff, "session destroyed")); n > 0 {
		c.logger.WithField("count", n).Debug("Failed pending operations on destroy")
	}
	c.forgetRequests()
	return DestroyResult{IsDestroyed: true}
}
