package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blite/internal/device"
	"github.com/srg/blite/internal/event"
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe <device-address> <service-uuid> <char-uuid>",
	Short: "Print characteristic notifications",
	Long: `Connects to a BLE device, enables notifications on one characteristic
and prints every value until Ctrl+C, the duration elapses or the link drops.

Examples:
  # Heart rate measurements as hex
  blite subscribe AA:BB:CC:DD:EE:FF 180d 2a37 --hex

  # Listen for 30 seconds, one JSON object per line
  blite subscribe AA:BB:CC:DD:EE:FF ffe0 ffe1 --duration 30s --format json`,
	Args: cobra.ExactArgs(3),
	RunE: runSubscribe,
}

var (
	subscribeHex      bool
	subscribeDuration time.Duration
)

func init() {
	subscribeCmd.Flags().BoolVar(&subscribeHex, "hex", false, "Output values as hex")
	subscribeCmd.Flags().DurationVarP(&subscribeDuration, "duration", "d", 0, "Stop after this long (0 for indefinite)")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	address := args[0]
	uuids, err := device.ValidateUUID(args[1], args[2])
	if err != nil {
		return err
	}

	rt, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if err := rt.start(ctx); err != nil {
		return err
	}
	if err := rt.connect(ctx, address); err != nil {
		return err
	}

	lost := make(chan struct{})
	unsubscribe := rt.ctl.Subscribe(event.ConnectionState, func(e event.Event) {
		if p, ok := e.Payload.(event.ConnectionStatePayload); ok && p.State == device.Disconnected {
			select {
			case <-lost:
			default:
				close(lost)
			}
		}
	})
	defer unsubscribe()

	values := make(chan event.NotificationPayload, 64)
	res, err := rt.ctl.EnableNotifications(uuids[0], uuids[1], func(n event.NotificationPayload) {
		select {
		case values <- n:
		default:
			rt.logger.Warn("Notification output is falling behind, dropping value")
		}
	}).Wait(ctx)
	if err != nil {
		return err
	}
	if err := resultError(res.Error); err != nil {
		return fmt.Errorf("failed to enable notifications: %w", err)
	}
	if !rt.wantJSON() {
		fmt.Fprintf(rt.out, "Subscribed to %s/%s, press Ctrl+C to stop\n", res.Service, res.Characteristic)
	}

	var deadline <-chan time.Time
	if subscribeDuration > 0 {
		timer := time.NewTimer(subscribeDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case n := <-values:
			if err := printNotification(rt, n); err != nil {
				return err
			}
		case <-lost:
			return ErrConnectionLost
		case <-deadline:
			return disableNotifications(rt, uuids[0], uuids[1])
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				_ = disableNotifications(rt, uuids[0], uuids[1])
			}
			return ctx.Err()
		}
	}
}

func printNotification(rt *runtime, n event.NotificationPayload) error {
	if rt.wantJSON() {
		return printJSON(rt.out, n)
	}
	fmt.Fprintf(rt.out, "%s %s\n", time.Now().Format("15:04:05.000"), formatValue(n.Bytes, subscribeHex))
	return nil
}

func disableNotifications(rt *runtime, service, characteristic string) error {
	res, err := waitFor(rt.ctl.DisableNotifications(service, characteristic), rt.cfg.Global.TimeoutDuration)
	if err != nil {
		return err
	}
	return resultError(res.Error)
}
