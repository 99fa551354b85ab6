package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blite/internal/adapter"
	"github.com/srg/blite/internal/device"
	"github.com/srg/blite/internal/driver"
	"github.com/srg/blite/internal/driver/goble"
	"github.com/srg/blite/internal/driver/tinygo"
	"github.com/srg/blite/internal/event"
	"github.com/srg/blite/internal/power"
	"github.com/srg/blite/internal/session"
	"github.com/srg/blite/pkg/config"
)

// newDriver builds the radio backend by name. Replaced in tests.
var newDriver = func(name string, logger *logrus.Logger) (driver.Driver, error) {
	var watcher power.Watcher
	if w, err := power.Factory(logger); err != nil {
		logger.WithError(err).Debug("Adapter power watcher unavailable")
	} else {
		watcher = w
	}

	switch name {
	case goble.Name:
		return goble.New(watcher, logger), nil
	case tinygo.Name:
		return tinygo.New(watcher, logger), nil
	default:
		return nil, fmt.Errorf("unknown driver %q (must be one of %v)", name, config.Drivers)
	}
}

// runtime bundles what every command needs: config, logger and the session.
type runtime struct {
	cfg    *config.Config
	logger *logrus.Logger
	ctl    *session.Controller
	out    io.Writer
}

// loadConfig reads --config when given and applies the global flag overrides.
func loadConfig(cmd *cobra.Command) (cfg *config.Config, fromFile bool, err error) {
	cfg = config.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if cfg, err = config.Load(path); err != nil {
			return nil, false, err
		}
		fromFile = true
	}

	if name, _ := cmd.Flags().GetString("driver"); name != "" {
		cfg.Driver = name
	}
	if format, _ := cmd.Flags().GetString("format"); format != "" {
		cfg.OutputFormat = format
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, fromFile, nil
}

// openSession validates flags and builds the session. It does not touch the
// radio; call start for that.
func openSession(cmd *cobra.Command) (*runtime, error) {
	cfg, fromFile, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	// Silent unless asked for, or configured in a file
	fallback := logrus.PanicLevel
	if fromFile {
		fallback = cfg.Level()
	}
	logger, err := configureLogger(cmd, "verbose", fallback)
	if err != nil {
		return nil, err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	drv, err := newDriver(cfg.Driver, logger)
	if err != nil {
		return nil, err
	}

	ctl := session.New(drv, session.Options{
		AutoDecodeBytes: cfg.Global.AutoDecodeBytes,
		Timeout:         cfg.Global.TimeoutDuration,
		Logger:          logger,
	})
	return &runtime{cfg: cfg, logger: logger, ctl: ctl, out: cmd.OutOrStdout()}, nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// start opens the radio and waits until the adapter reports ON.
func (r *runtime) start(ctx context.Context) error {
	ready := make(chan struct{}, 1)
	unsubscribe := r.ctl.Subscribe(event.AdapterState, func(e event.Event) {
		if p, ok := e.Payload.(event.AdapterStatePayload); ok && p.State == adapter.On {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := r.ctl.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s driver: %w", r.cfg.Driver, err)
	}
	if r.ctl.IsEnabled() {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.Global.TimeoutDuration)
	defer cancel()
	select {
	case <-ready:
		return nil
	case <-waitCtx.Done():
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: adapter is %s", ErrAdapterNotReady, r.ctl.AdapterState())
		}
		return waitCtx.Err()
	}
}

func (r *runtime) Close() {
	if err := r.ctl.Close(); err != nil {
		r.logger.WithError(err).Warn("Failed to close session")
	}
}

// connect finds address with a filtered scan and opens a link to it.
func (r *runtime) connect(ctx context.Context, address string) error {
	progress := NewCountdownProgressPrinter(r.progressWriter(), "Connecting to "+address, "Scanning", r.scanDuration())
	progress.Start()
	defer progress.Stop()

	scan, err := r.ctl.StartScan(session.ScanOptions{
		Duration:         r.scanDuration(),
		Address:          address,
		StopOnFirstMatch: true,
	}).Wait(ctx)
	if err != nil {
		return err
	}
	if err := resultError(scan.Error); err != nil {
		return err
	}
	if len(scan.Devices) == 0 {
		return device.NewError(device.CodeDeviceNotFound, "%s not seen within %s", address, r.scanDuration())
	}

	progress.SetPhase("Connecting")
	res, err := r.ctl.Connect(address, session.ConnectOptions{}).Wait(ctx)
	if err != nil {
		return err
	}
	return resultError(res.Error)
}

func (r *runtime) scanDuration() time.Duration {
	if r.cfg.ScanDuration > 0 {
		return r.cfg.ScanDuration
	}
	return r.cfg.Global.TimeoutDuration
}

// progressWriter hides progress output when machine-readable output is requested.
func (r *runtime) progressWriter() io.Writer {
	if r.cfg.OutputFormat == "json" {
		return io.Discard
	}
	return r.out
}

func (r *runtime) wantJSON() bool {
	return r.cfg.OutputFormat == "json"
}

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// waitFor waits up to d for f, independently of any cancelled command context.
func waitFor[T any](f *session.Future[T], d time.Duration) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return f.Wait(ctx)
}
