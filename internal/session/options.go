package session

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blite/internal/device"
	"github.com/srg/blite/internal/event"
)

const (
	// DefaultTimeout bounds every operation that does not carry its own duration.
	DefaultTimeout = 10 * time.Second
	// DefaultMTU is requested when RequestMTU is called with a non-positive size.
	DefaultMTU = 517
)

// Options configures a Controller.
type Options struct {
	// AutoDecodeBytes fills the Value field of read and notification
	// results with the payload decoded as text.
	AutoDecodeBytes bool
	// Timeout is the global operation timeout. Zero uses DefaultTimeout.
	Timeout time.Duration
	// JournalSize bounds RecentEvents. Zero uses event.DefaultJournalSize.
	JournalSize uint32
	// Casing overrides the identifier casing reported by the driver.
	Casing *device.Casing
	Logger *logrus.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.JournalSize == 0 {
		o.JournalSize = event.DefaultJournalSize
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
	return o
}

// ScanOptions configures a scan session.
type ScanOptions struct {
	// Duration stops the scan automatically. Zero uses the global timeout,
	// a negative value scans until StopScan or Destroy.
	Duration time.Duration
	// Address keeps only the peripheral with this address.
	Address string
	// Name keeps only peripherals advertising exactly this name.
	Name string
	// StopOnFirstMatch ends the scan after the first accepted device.
	StopOnFirstMatch bool
}

// ConnectOptions configures a connection attempt.
type ConnectOptions struct {
	// Timeout gives up on the attempt and reports DEVICE_NOT_FOUND.
	// Zero uses the global timeout.
	Timeout time.Duration
}

// DiscoverServicesOptions configures service discovery.
type DiscoverServicesOptions struct {
	// Services maps a service UUID to the characteristic UUIDs of interest.
	// An empty list keeps the whole service, an empty map keeps everything.
	Services map[string][]string
	// Timeout bounds discovery. Zero uses the global timeout.
	Timeout time.Duration
}

func orDefault(d, def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return d
}
