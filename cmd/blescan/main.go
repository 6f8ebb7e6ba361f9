// Blescan passively scans for Bluetooth Low Energy advertisements.
//
// It merges repeated advertisements into one record per device address,
// resolves manufacturer and service identifiers, prints new and updated
// devices to the console and exports the device table on exit.
//
// Usage:
//
//	blescan [command] [flags]
//
// See 'blescan --help' for available commands.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"blescan/internal/ids"
	"blescan/internal/logging"
)

var (
	logLevel      string
	logFile       string
	dataDir       string
	customDataDir string
)

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "blescan",
	Short: "Passive Bluetooth Low Energy scanner",
	Long: `Passively scan for Bluetooth Low Energy advertisements.

Repeated advertisements from one address are merged into a single device
record. Manufacturer identifiers are resolved against the Bluetooth SIG
company registry and 16-bit service UUIDs are shown in short form.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel, logFile)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to $"+logging.LogLevelEnvVar)
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", logging.DefaultLogFile, "Log file path, '-' for stderr")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Data directory root (expects default/ and custom/ subfolders)")
	rootCmd.PersistentFlags().StringVar(&customDataDir, "custom-data-dir", "", "Optional custom data directory path (overrides <data-dir>/custom)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(adaptersCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(companiesCmd)
	rootCmd.AddCommand(uuidCmd)
}

func loadResolver() (*ids.Resolver, error) {
	res, err := ids.Load(ids.LoadConfig{
		DataDir:   strings.TrimSpace(dataDir),
		CustomDir: strings.TrimSpace(customDataDir),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load data files: %w", err)
	}
	return res, nil
}

func printLogo() {
	logo := `
    _/_/_/    _/        _/_/_/_/    _/_/_/    _/_/_/    _/_/    _/      _/
   _/    _/  _/        _/        _/        _/        _/    _/  _/_/    _/
  _/_/_/    _/        _/_/_/      _/_/    _/        _/_/_/_/  _/  _/  _/
 _/    _/  _/        _/              _/  _/        _/    _/  _/    _/_/
_/_/_/    _/_/_/_/  _/_/_/_/  _/_/_/      _/_/_/  _/    _/  _/      _/
`
	fmt.Println(logo)
}
