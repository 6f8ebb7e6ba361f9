package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"blescan/internal/bluetooth"
	"blescan/internal/hexdump"
	"blescan/internal/ids"
	"blescan/internal/util"
)

var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "List Bluetooth adapters",
	Long: `List the controllers BlueZ exposes on the system bus.

When the system bus is unavailable, falls back to hciconfig output.`,
	Args: cobra.NoArgs,
	RunE: runAdapters,
}

func runAdapters(cmd *cobra.Command, args []string) error {
	adapters, err := bluetooth.ListAdapters(cmd.Context())
	if err != nil {
		util.Linef("[WARN]", util.ColorYellow, "%v; falling back to hciconfig", err)
		ifaces, ierr := bluetooth.GetBluetoothInterfaces(cmd.Context())
		if ierr != nil {
			return fmt.Errorf("failed to get Bluetooth interfaces: %w", ierr)
		}
		for _, inf := range ifaces {
			adapters = append(adapters, bluetooth.AdapterInfo{ID: inf.ID, BusInfo: inf.BusInfo})
		}
	}
	if len(adapters) == 0 {
		fmt.Println("No Bluetooth interfaces found.")
		return nil
	}

	fmt.Println("Available Bluetooth interfaces:")
	for i, a := range adapters {
		state := "down"
		if a.Powered {
			state = "up"
		}
		if a.Discovering {
			state += ",discovering"
		}
		fmt.Printf("%d: %s %s (%s) bus=%s %s\n", i, a.ID, a.Address, a.Name, a.BusInfo, state)
	}
	return nil
}

var dumpBinary bool

var dumpCmd = &cobra.Command{
	Use:   "dump <hex>...",
	Short: "Decode a raw advertising payload",
	Long: `Render a raw advertising payload as a hex dump and list its AD structures.

Arguments are concatenated; spaces, colons and a 0x prefix on each argument are ignored.`,
	Example: `  blescan dump 0201061AFF4C000215
  blescan dump "02 01 06" "05 09 54 61 67 21"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().BoolVar(&dumpBinary, "binary", false, "Also print the payload as 8-bit binary groups")
}

func runDump(cmd *cobra.Command, args []string) error {
	b, err := parseHexArgs(args)
	if err != nil {
		return err
	}

	fmt.Println(hexdump.Dump(b))
	if dumpBinary {
		fmt.Println(hexdump.Binary(b))
	}
	fmt.Println()

	for _, ad := range bluetooth.ParseADStructures(b) {
		line := fmt.Sprintf("%s %-36s %s", ad.TypeHex, ad.Name, ad.DataHex)
		if ad.Text != "" {
			line += "  " + strconv.Quote(ad.Text)
		}
		fmt.Println(line)
	}
	if tx := bluetooth.TxPowerFromAdv(b); tx != nil {
		fmt.Printf("tx power: %d dBm\n", *tx)
	}
	return nil
}

func parseHexArgs(args []string) ([]byte, error) {
	var sb strings.Builder
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		arg = strings.TrimPrefix(strings.TrimPrefix(arg, "0x"), "0X")
		sb.WriteString(arg)
	}
	s := strings.NewReplacer(" ", "", ":", "", "-", "").Replace(sb.String())
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return b, nil
}

var companiesCmd = &cobra.Command{
	Use:   "companies <id>...",
	Short: "Look up Bluetooth SIG company identifiers",
	Example: `  blescan companies 0x004C 89`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := loadResolver()
		if err != nil {
			return err
		}
		util.Linef("[REGISTRY]", util.ColorGray, "company identifiers %s (%d entries)", res.Companies().Version(), res.Companies().Len())
		for _, arg := range args {
			id, err := strconv.ParseUint(strings.TrimSpace(arg), 0, 16)
			if err != nil {
				return fmt.Errorf("invalid company id %q: %w", arg, err)
			}
			fmt.Printf("%s  %s\n", ids.FormatCompanyID(uint16(id)), res.ManufacturerName(uint16(id)))
		}
		return nil
	},
}

var uuidCmd = &cobra.Command{
	Use:     "uuid <uuid>...",
	Short:   "Normalize service UUIDs and show their SIG names",
	Example: `  blescan uuid 0000180f-0000-1000-8000-00805f9b34fb FEAA`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := loadResolver()
		if err != nil {
			return err
		}
		for _, arg := range args {
			short := ids.NormalizeUUID(arg)
			full, err := ids.ExpandUUID(arg)
			if err != nil {
				return fmt.Errorf("%q: %w", arg, err)
			}
			name := res.ServiceName(arg)
			if name == "" {
				name = "-"
			}
			fmt.Printf("%-36s  %-36s  %s\n", short, full, name)
		}
		return nil
	},
}
