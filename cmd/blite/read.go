package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/srg/blite/internal/device"
	"github.com/srg/blite/internal/session"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <device-address> <service-uuid> <char-uuid>",
	Short: "Read a characteristic value",
	Long: `Connects to a BLE device and reads one characteristic.

Examples:
  # Battery level as hex
  blite read AA:BB:CC:DD:EE:FF 180f 2a19 --hex

  # Device name as text
  blite read AA:BB:CC:DD:EE:FF 1800 2a00`,
	Args: cobra.ExactArgs(3),
	RunE: runRead,
}

var readHex bool

func init() {
	readCmd.Flags().BoolVar(&readHex, "hex", false, "Output as hex string (e.g., 'ff01'); text by default")
}

func runRead(cmd *cobra.Command, args []string) error {
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

	res, err := rt.ctl.Read(uuids[0], uuids[1]).Wait(ctx)
	if err != nil {
		return err
	}
	if err := resultError(res.Error); err != nil {
		return fmt.Errorf("read failed: %w", err)
	}

	if rt.wantJSON() {
		return printJSON(rt.out, res)
	}
	fmt.Fprintln(rt.out, formatValue(res.Bytes, readHex))
	return nil
}

// formatValue renders a characteristic payload as hex or text.
func formatValue(b []byte, asHex bool) string {
	if asHex {
		return hex.EncodeToString(b)
	}
	return device.BytesToString(b)
}

func printTransaction(out io.Writer, verb string, r session.TransactionResult) {
	fmt.Fprintf(out, "%s %d byte(s)\n", verb, len(r.Bytes))
}

// parsePayload decodes a command-line payload, hex when asHex is set.
func parsePayload(s string, asHex bool) ([]byte, error) {
	if !asHex {
		return device.StringToBytes(s), nil
	}
	s = strings.TrimPrefix(strings.ReplaceAll(s, " ", ""), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return b, nil
}
