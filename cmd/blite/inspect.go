package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/srg/blite/internal/bledb"
	"github.com/srg/blite/internal/device"
	"github.com/srg/blite/internal/session"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <device-address>",
	Short: "Connect to a device and list its GATT services",
	Long: `Connects to a BLE device and prints its services and characteristics.

--service narrows discovery. Give a bare service UUID to keep the whole
service, or SERVICE:CHAR[,CHAR...] to keep only those characteristics.

Examples:
  # Full profile
  blite inspect AA:BB:CC:DD:EE:FF

  # Battery service and the heart rate measurement only
  blite inspect AA:BB:CC:DD:EE:FF --service 180f --service 180d:2a37`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var inspectServices []string

func init() {
	inspectCmd.Flags().StringArrayVar(&inspectServices, "service", nil, "Service filter, SERVICE or SERVICE:CHAR[,CHAR...] (repeatable)")
}

// inspectReport is the JSON shape of the inspect command
type inspectReport struct {
	Address  string               `json:"address"`
	Services []device.ServiceInfo `json:"services"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	address := args[0]
	filter, err := parseServiceFilter(inspectServices)
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

	res, err := rt.ctl.DiscoverServices(session.DiscoverServicesOptions{Services: filter}).Wait(ctx)
	if err != nil {
		return err
	}
	if err := resultError(res.Error); err != nil {
		return fmt.Errorf("service discovery failed: %w", err)
	}

	if rt.wantJSON() {
		return printJSON(rt.out, inspectReport{Address: address, Services: res.Services})
	}
	displayServices(rt.out, address, res.Services)
	return nil
}

// parseServiceFilter turns SERVICE[:CHAR,...] arguments into a discovery filter.
func parseServiceFilter(args []string) (map[string][]string, error) {
	if len(args) == 0 {
		return nil, nil
	}

	filter := make(map[string][]string, len(args))
	for _, arg := range args {
		svc, chars, _ := strings.Cut(arg, ":")
		if _, err := device.ValidateUUID(svc); err != nil {
			return nil, fmt.Errorf("invalid service UUID: %w", err)
		}

		var list []string
		if chars != "" {
			var err error
			if list, err = device.ValidateUUID(strings.Split(chars, ",")...); err != nil {
				return nil, fmt.Errorf("invalid characteristic UUID for service %s: %w", svc, err)
			}
		}
		filter[svc] = append(filter[svc], list...)
	}
	return filter, nil
}

func displayServices(out io.Writer, address string, services []device.ServiceInfo) {
	fmt.Fprintf(out, "Device %s\n", address)
	if len(services) == 0 {
		fmt.Fprintln(out, "  No services discovered")
		return
	}

	for _, svc := range services {
		fmt.Fprintf(out, "  Service %s%s\n", svc.UUID, knownName(bledb.LookupService(svc.UUID)))
		for _, ch := range svc.Characteristics {
			props := ""
			if len(ch.Properties) > 0 {
				props = " [" + strings.Join(ch.Properties, ", ") + "]"
			}
			fmt.Fprintf(out, "    Characteristic %s%s%s\n", ch.UUID, knownName(bledb.LookupCharacteristic(ch.UUID)), props)
		}
	}
}

func knownName(name string) string {
	if name == "" {
		return ""
	}
	return " (" + name + ")"
}
