// Package export writes device table snapshots to disk.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"blescan/internal/devices"
)

// ErrNothingToExport is returned when the snapshot is empty.
var ErrNothingToExport = errors.New("no devices to export")

// Error reports a filesystem failure while writing an export.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("export %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Entry is the on-disk form of one device record.
type Entry struct {
	Address        string             `json:"address"`
	Name           string             `json:"name"`
	Manufacturer   string             `json:"manufacturer"`
	ManufacturerID string             `json:"manufacturer_id"`
	ServiceUUIDs   []string           `json:"service_uuids"`
	ServiceData    map[string]*string `json:"service_data"`
	RSSI           int                `json:"rssi"`
	LastSeen       string             `json:"last_seen"`
	RawData        RawData            `json:"raw_data"`
}

type RawData struct {
	ManufacturerData map[string]string  `json:"manufacturer_data"`
	ServiceData      map[string]*string `json:"service_data"`
	TxPower          *int               `json:"tx_power"`
	PlatformData     string             `json:"platform_data"`
}

// FileName returns ble_scan_results_YYYYMMDD_HHMMSS with the given extension.
func FileName(now time.Time, ext string) string {
	return "ble_scan_results_" + now.Format("20060102_150405") + ext
}

// NewEntry converts a record to its export form.
func NewEntry(rec devices.Record) Entry {
	e := Entry{
		Address:        rec.Address,
		Name:           rec.Name,
		Manufacturer:   rec.ManufacturerName,
		ManufacturerID: rec.ManufacturerIDString(),
		ServiceUUIDs:   rec.ServiceUUIDs,
		ServiceData:    rec.ServiceData,
		RSSI:           rec.RSSI,
		LastSeen:       rec.LastSeen.Format(time.RFC3339Nano),
		RawData: RawData{
			ManufacturerData: rec.Raw.ManufacturerData,
			ServiceData:      rec.Raw.ServiceData,
			TxPower:          rec.Raw.TxPower,
			PlatformData:     rec.Raw.PlatformData,
		},
	}
	if e.ServiceUUIDs == nil {
		e.ServiceUUIDs = []string{}
	}
	if e.ServiceData == nil {
		e.ServiceData = map[string]*string{}
	}
	if e.RawData.ManufacturerData == nil {
		e.RawData.ManufacturerData = map[string]string{}
	}
	if e.RawData.ServiceData == nil {
		e.RawData.ServiceData = map[string]*string{}
	}
	return e
}

// WriteJSON writes records as an indented JSON array to
// dir/ble_scan_results_<timestamp>.json and returns the file path.
// The file appears atomically; a failed write leaves no partial file.
func WriteJSON(dir string, records []devices.Record, now time.Time) (string, error) {
	if len(records) == 0 {
		return "", ErrNothingToExport
	}
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, FileName(now, ".json"))

	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, NewEntry(rec))
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", &Error{Path: path, Err: err}
	}
	b = append(b, '\n')

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &Error{Path: path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".ble_scan_results_*.tmp")
	if err != nil {
		return "", &Error{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", &Error{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", &Error{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", &Error{Path: path, Err: err}
	}
	return path, nil
}
