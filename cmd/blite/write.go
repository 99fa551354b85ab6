package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srg/blite/internal/device"
	"github.com/srg/blite/internal/session"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <device-address> <service-uuid> <char-uuid> <data>",
	Short: "Write a characteristic value",
	Long: `Connects to a BLE device and writes one characteristic.

By default the write waits for the peripheral's acknowledgement;
--no-response submits a write command and returns immediately.

Examples:
  # Write text
  blite write AA:BB:CC:DD:EE:FF ffe0 ffe1 "hello"

  # Write raw bytes without response
  blite write AA:BB:CC:DD:EE:FF ffe0 ffe1 01ff --hex --no-response`,
	Args: cobra.ExactArgs(4),
	RunE: runWrite,
}

var (
	writeHex        bool
	writeNoResponse bool
)

func init() {
	writeCmd.Flags().BoolVar(&writeHex, "hex", false, "Treat data as a hex string")
	writeCmd.Flags().BoolVar(&writeNoResponse, "no-response", false, "Write without response")
}

func runWrite(cmd *cobra.Command, args []string) error {
	address := args[0]
	uuids, err := device.ValidateUUID(args[1], args[2])
	if err != nil {
		return err
	}
	payload, err := parsePayload(args[3], writeHex)
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

	var f *session.Future[session.TransactionResult]
	if writeNoResponse {
		f = rt.ctl.WriteWithoutResponse(uuids[0], uuids[1], payload)
	} else {
		f = rt.ctl.Write(uuids[0], uuids[1], payload)
	}

	res, err := f.Wait(ctx)
	if err != nil {
		return err
	}
	if err := resultError(res.Error); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	if rt.wantJSON() {
		return printJSON(rt.out, res)
	}
	printTransaction(rt.out, "Wrote", res)
	return nil
}
