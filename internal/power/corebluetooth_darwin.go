//go:build darwin

package power

import (
	"context"
	"sync"

	"github.com/JuulLabs-OSS/cbgo"
	"github.com/sirupsen/logrus"
	"github.com/srg/blite/internal/adapter"
)

// CoreBluetooth watches CBCentralManager state through its delegate.
type CoreBluetooth struct {
	cbgo.CentralManagerDelegateBase

	logger *logrus.Logger

	mu     sync.Mutex
	cm     cbgo.CentralManager
	report Report
	stop   context.CancelFunc
}

func newPlatformWatcher(logger *logrus.Logger) (Watcher, error) {
	if logger == nil {
		logger = logrus.New()
	}
	return &CoreBluetooth{logger: logger}, nil
}

func (c *CoreBluetooth) Start(ctx context.Context, report Report) error {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.report = report
	c.stop = cancel
	c.cm = cbgo.NewCentralManager(&cbgo.ManagerOpts{})
	cm := c.cm
	c.mu.Unlock()

	cm.SetDelegate(c)

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		c.report = nil
		c.mu.Unlock()
	}()
	return nil
}

// CentralManagerDidUpdateState fires once at startup and on every change.
func (c *CoreBluetooth) CentralManagerDidUpdateState(cmgr cbgo.CentralManager) {
	state := adapter.FromCoreBluetooth(int(cmgr.State()))
	c.logger.WithField("state", state).Debug("CoreBluetooth state update")

	c.mu.Lock()
	report := c.report
	c.mu.Unlock()
	if report != nil {
		report(state)
	}
}

func (c *CoreBluetooth) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	return nil
}
