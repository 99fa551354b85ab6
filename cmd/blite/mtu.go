package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srg/blite/internal/session"
)

// mtuCmd represents the mtu command
var mtuCmd = &cobra.Command{
	Use:   "mtu <device-address>",
	Short: "Negotiate the ATT MTU with a device",
	Long: fmt.Sprintf(`Connects to a BLE device and requests an ATT MTU exchange.
The peripheral may grant less than requested; the negotiated value is printed.

Examples:
  # Request the default size (%d)
  blite mtu AA:BB:CC:DD:EE:FF

  # Request a specific size
  blite mtu AA:BB:CC:DD:EE:FF --size 247`, session.DefaultMTU),
	Args: cobra.ExactArgs(1),
	RunE: runMTU,
}

var mtuSize int

func init() {
	mtuCmd.Flags().IntVar(&mtuSize, "size", session.DefaultMTU, "Requested MTU")
}

func runMTU(cmd *cobra.Command, args []string) error {
	if mtuSize < 23 {
		return fmt.Errorf("invalid MTU %d: must be at least 23", mtuSize)
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
	if err := rt.connect(ctx, args[0]); err != nil {
		return err
	}

	res, err := rt.ctl.RequestMTU(mtuSize).Wait(ctx)
	if err != nil {
		return err
	}
	if err := resultError(res.Error); err != nil {
		return fmt.Errorf("MTU exchange failed: %w", err)
	}

	if rt.wantJSON() {
		return printJSON(rt.out, res)
	}
	fmt.Fprintf(rt.out, "MTU %d\n", res.MTU)
	return nil
}
