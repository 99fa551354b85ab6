package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blite/internal/device"
	"github.com/srg/blite/internal/session"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

Each device is reported once per scan, in discovery order. Filters on
address and advertised name are exact matches and combine with AND.

Examples:
  # Scan for 5 seconds
  blite scan --duration 5s

  # Stop as soon as a named device shows up
  blite scan --name "Heart Rate" --first

  # Machine-readable output
  blite scan --format json`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanName     string
	scanAddress  string
	scanFirst    bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default from config)")
	scanCmd.Flags().StringVar(&scanName, "name", "", "Only keep devices advertising exactly this name")
	scanCmd.Flags().StringVar(&scanAddress, "address", "", "Only keep the device with this address")
	scanCmd.Flags().BoolVar(&scanFirst, "first", false, "Stop on the first matching device")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanDuration < 0 {
		return fmt.Errorf("invalid duration %s: must not be negative", scanDuration)
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

	duration := scanDuration
	if duration == 0 {
		duration = rt.scanDuration()
	}

	progress := NewCountdownProgressPrinter(rt.progressWriter(), "Scanning for BLE devices", "Scanning", duration)
	progress.Start()

	scan := rt.ctl.StartScan(session.ScanOptions{
		Duration:         duration,
		Address:          scanAddress,
		Name:             scanName,
		StopOnFirstMatch: scanFirst,
	})
	result, err := scan.Wait(ctx)
	progress.Stop()

	if err != nil {
		if ctx.Err() == nil {
			return err
		}
		// Ctrl+C: stop the scan and still show what was found
		fmt.Fprintln(rt.out, "\nCtrl+C pressed, stopping scan...")
		rt.ctl.StopScan()
		if result, err = waitFor(scan, time.Second); err != nil {
			return context.Canceled
		}
	}
	if err := resultError(result.Error); err != nil {
		return err
	}

	if rt.wantJSON() {
		return printJSON(rt.out, result.Devices)
	}
	return displayDevicesTable(rt.out, result.Devices)
}

func displayDevicesTable(out io.Writer, devices []device.Device) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI")
	fmt.Fprintln(w, strings.Repeat("-", 60))

	for _, d := range devices {
		name := d.DisplayName()
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\n", name, d.Address, d.RSSI)
	}

	return w.Flush()
}
