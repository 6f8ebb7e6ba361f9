package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"blescan/internal/bluetooth"
	"blescan/internal/db"
	"blescan/internal/devices"
	"blescan/internal/export"
	"blescan/internal/ids"
	"blescan/internal/logging"
	"blescan/internal/session"
	"blescan/internal/status"
	"blescan/internal/util"
)

var (
	scanAdapter       string
	scanBackend       string
	scanDuration      time.Duration
	scanExportDir     string
	scanFormat        string
	scanCaptureDB     string
	scanCaptureEvery  time.Duration
	scanStatsInterval int
	scanQueueSize     int
	scanQuiet         bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for advertising devices",
	Long: `Scan for BLE advertisements until interrupted or until --duration elapses.

New devices are printed as [NEW] lines, later advertisements as [UPDATE]
lines. On exit the device table is exported to --export-dir.

While scanning, SIGUSR1 exports the current table and SIGUSR2 clears it.`,
	Example: `  # Scan with the default adapter until Ctrl-C
  blescan scan

  # Scan hci1 through BlueZ for one minute, export as SQLite
  blescan scan --backend bluez --adapter hci1 --duration 1m --format sqlite

  # Keep an append-only capture log of every device
  blescan scan --capture-db capture.db`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanAdapter, "adapter", "", "Bluetooth adapter to use (e.g. hci0); empty selects the default adapter")
	scanCmd.Flags().StringVar(&scanBackend, "backend", "tinygo", "Host stack backend: tinygo|bluez")
	scanCmd.Flags().DurationVar(&scanDuration, "duration", 0, "Stop after this long (0 scans until interrupted)")
	scanCmd.Flags().StringVar(&scanExportDir, "export-dir", ".", "Directory for exported results")
	scanCmd.Flags().StringVar(&scanFormat, "format", "json", "Export format: json|sqlite")
	scanCmd.Flags().StringVar(&scanCaptureDB, "capture-db", "", "Optional SQLite capture log path")
	scanCmd.Flags().DurationVar(&scanCaptureEvery, "capture-throttle", db.DefaultAdvertisementThrottle, "Minimum interval between capture log rows for one address")
	scanCmd.Flags().IntVar(&scanStatsInterval, "stats-interval", 0, "Console status interval in seconds (0 disables)")
	scanCmd.Flags().IntVar(&scanQueueSize, "queue-size", session.DefaultQueueSize, "Event queue capacity")
	scanCmd.Flags().BoolVar(&scanQuiet, "quiet", false, "Only print new devices")
}

func newSource(backend, adapter string) (session.Source, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "tinygo", "":
		return bluetooth.NewTinyGoSource(adapter), nil
	case "bluez":
		return bluetooth.NewBlueZSource(adapter), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want tinygo or bluez)", backend)
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(strings.TrimSpace(scanFormat))
	if format != "json" && format != "sqlite" {
		return fmt.Errorf("unknown export format %q (want json or sqlite)", scanFormat)
	}
	src, err := newSource(scanBackend, scanAdapter)
	if err != nil {
		return err
	}
	resolver, err := loadResolver()
	if err != nil {
		return err
	}

	printLogo()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if scanDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, scanDuration)
		defer cancel()
	}

	probe := util.NewPlatformProbe(scanAdapter, src.Name())

	printer := &consolePrinter{resolver: resolver, quiet: scanQuiet}
	if scanCaptureDB != "" {
		store, err := db.Open(scanCaptureDB, db.WithThrottle(scanCaptureEvery))
		if err != nil {
			return fmt.Errorf("failed to open capture database: %w", err)
		}
		defer store.Close()
		sessionID, err := store.CreateSession(ctx, scanAdapter, src.Name())
		if err != nil {
			return fmt.Errorf("failed to create capture session: %w", err)
		}
		defer func() {
			if err := store.EndSession(context.Background(), sessionID); err != nil {
				logging.Warn("end capture session", zap.Error(err))
			}
		}()
		printer.store, printer.sessionID = store, sessionID
		util.Linef("[SESSION]", util.ColorGray, "id=%d capture=%s", sessionID, scanCaptureDB)
	}

	mgr := session.New(session.Options{
		Decoder:   bluetooth.NewDecoder(resolver.Companies(), bluetooth.WithProbe(probe.String)),
		QueueSize: scanQueueSize,
		Observer:  printer,
		Probe:     probe.String,
	})
	defer mgr.Close()

	if scanStatsInterval > 0 {
		go status.Run(ctx, time.Duration(scanStatsInterval)*time.Second, status.Provider{
			Devices:   mgr.Len,
			Store:     printer.store,
			SessionID: printer.sessionID,
		})
	}

	util.Linef("[SCAN]", util.ColorGray, "backend=%s adapter=%s", src.Name(), adapterLabel(scanAdapter))
	if err := mgr.Start(ctx, src); err != nil {
		return err
	}

	exportNow, clearNow := controlSignals()
	defer signal.Stop(exportNow)
	defer signal.Stop(clearNow)

loop:
	for {
		select {
		case <-mgr.Done():
			break loop
		case <-ctx.Done():
			util.Line("[EXIT]", util.ColorGray, "stopping")
			break loop
		case err := <-mgr.Errors():
			// Terminal errors are returned by Wait below.
			if bluetooth.IsDecode(err) {
				reportError(err)
			}
		case <-exportNow:
			exportSnapshot(ctx, mgr.Snapshot(), format)
		case <-clearNow:
			mgr.Clear()
			util.Line("[CLEAR]", util.ColorGray, "device table cleared")
		}
	}
	_ = mgr.Stop()
	scanErr := mgr.Wait()
	drainErrors(mgr)

	records := mgr.Snapshot()
	printSummary(records)
	exportSnapshot(context.Background(), records, format)

	if scanErr != nil && !errors.Is(scanErr, context.Canceled) && !errors.Is(scanErr, context.DeadlineExceeded) {
		return scanErr
	}
	return nil
}

// drainErrors reports decode errors that arrived while the queue drained.
func drainErrors(mgr *session.Manager) {
	for {
		select {
		case err := <-mgr.Errors():
			if bluetooth.IsDecode(err) {
				reportError(err)
			}
		default:
			return
		}
	}
}

func reportError(err error) {
	var se *bluetooth.ScanError
	if errors.As(err, &se) && se.Kind == bluetooth.KindDecode {
		util.Linef("[DECODE]", util.ColorYellow, "%s: %v", se.Address, se.Err)
		return
	}
	util.Linef("[ERROR]", util.ColorYellow, "%v", err)
}

func exportSnapshot(ctx context.Context, records []devices.Record, format string) {
	var (
		path string
		err  error
	)
	now := time.Now()
	switch format {
	case "sqlite":
		path, err = export.WriteSQLite(ctx, scanExportDir, records, now)
	default:
		path, err = export.WriteJSON(scanExportDir, records, now)
	}
	if errors.Is(err, export.ErrNothingToExport) {
		util.Line("[EXPORT]", util.ColorGray, "no devices to export")
		return
	}
	if err != nil {
		logging.Error("export failed", zap.Error(err))
		util.Linef("[ERROR]", util.ColorYellow, "%v", err)
		return
	}
	util.Linef("[EXPORT]", util.ColorGreen, "%d devices -> %s", len(records), path)
}

func printSummary(records []devices.Record) {
	if len(records) == 0 {
		return
	}
	sorted := make([]devices.Record, len(records))
	copy(sorted, records)
	devices.SortByRSSI(sorted)

	util.Linef("[SUMMARY]", util.ColorCyan, "%d devices", len(sorted))
	for _, rec := range sorted {
		fmt.Printf("  %-17s  %4s  %s  %-24s  %s\n",
			rec.Address, rssiLabel(rec), rec.LastSeenDisplay(), util.SafeName(rec.Name), rec.ManufacturerName)
	}
}

// consolePrinter prints records as they are merged and feeds the optional
// capture store. It runs on the session's owner goroutine.
type consolePrinter struct {
	resolver  *ids.Resolver
	quiet     bool
	store     *db.Store
	sessionID int64
}

func (p *consolePrinter) OnRecord(rec devices.Record, inserted bool) {
	if inserted {
		util.Line("[NEW]", util.ColorGreen, p.describe(rec))
	} else if !p.quiet {
		util.Line("[UPDATE]", util.ColorGray, p.describe(rec))
	}
	if p.store != nil {
		if _, err := p.store.InsertAdvertisement(context.Background(), p.sessionID, rec); err != nil {
			logging.Warn("capture advertisement", zap.String("address", rec.Address), zap.Error(err))
		}
	}
}

func (p *consolePrinter) describe(rec devices.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s RSSI=%s Name=%s", rec.Address, rssiLabel(rec), util.SafeName(rec.Name))
	if rec.ManufacturerName != "" {
		fmt.Fprintf(&b, " Mfr=%s", rec.ManufacturerName)
	}
	if vendor := p.resolver.VendorForMAC(rec.Address); vendor != "" {
		fmt.Fprintf(&b, " Vendor=%s", vendor)
	}
	if len(rec.ServiceUUIDs) > 0 {
		names := make([]string, 0, len(rec.ServiceUUIDs))
		for _, u := range rec.ServiceUUIDs {
			names = append(names, p.resolver.AnnotateServiceUUID(u))
		}
		fmt.Fprintf(&b, " Services=[%s]", strings.Join(names, ", "))
	}
	return b.String()
}

func rssiLabel(rec devices.Record) string {
	if !rec.HasRSSI() {
		return "n/a"
	}
	return strconv.Itoa(rec.RSSI)
}

func adapterLabel(adapter string) string {
	if adapter == "" {
		return "default"
	}
	return adapter
}
