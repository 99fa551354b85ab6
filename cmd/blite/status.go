package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srg/blite/internal/adapter"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show Bluetooth adapter state and permission",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

// statusReport is the JSON shape of the status command
type statusReport struct {
	Driver     string             `json:"driver"`
	Adapter    adapter.State      `json:"adapter"`
	Permission adapter.Permission `json:"permission"`
	Enabled    bool               `json:"enabled"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	// A radio that is off is a valid status, not a failure
	if err := rt.start(ctx); err != nil && !errors.Is(err, ErrAdapterNotReady) {
		return err
	}

	report := statusReport{
		Driver:     rt.cfg.Driver,
		Adapter:    rt.ctl.AdapterState(),
		Permission: rt.ctl.PermissionStatus(),
		Enabled:    rt.ctl.IsEnabled(),
	}

	if rt.wantJSON() {
		return printJSON(rt.out, report)
	}
	fmt.Fprintf(rt.out, "Driver:      %s\n", report.Driver)
	fmt.Fprintf(rt.out, "Adapter:     %s\n", report.Adapter)
	fmt.Fprintf(rt.out, "Permission:  %s\n", report.Permission)
	fmt.Fprintf(rt.out, "Enabled:     %t\n", report.Enabled)
	return nil
}
