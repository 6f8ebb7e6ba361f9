package export

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"blescan/internal/devices"
)

func ptr[T any](v T) *T { return &v }

var exportTime = time.Date(2024, 3, 9, 14, 5, 6, 0, time.Local)

func sampleRecords() []devices.Record {
	return []devices.Record{
		{
			Address:          "AA:BB:CC:DD:EE:FF",
			Name:             "Tag",
			ManufacturerName: "Apple, Inc.",
			ManufacturerID:   ptr(uint16(0x004C)),
			ServiceUUIDs:     []string{"180F", "FEAA"},
			ServiceData:      map[string]*string{"180F": nil, "FEAA": ptr("0102")},
			RSSI:             -99,
			LastSeen:         exportTime,
			Raw: devices.RawPayload{
				ManufacturerData: map[string]string{"0x004C": "0215"},
				ServiceData:      map[string]*string{"FEAA": ptr("0102")},
				TxPower:          ptr(-12),
				PlatformData:     `{"source":"test"}`,
			},
		},
		{Address: "11:22:33:44:55:66", RSSI: devices.RSSIUnknown, LastSeen: exportTime},
	}
}

func TestWriteJSON(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteJSON(dir, sampleRecords(), exportTime)
	if err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if got, want := filepath.Base(path), "ble_scan_results_20240309_140506.json"; got != want {
		t.Errorf("file name = %q, want %q", got, want)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "\n  {\n    \"address\"") {
		t.Errorf("output is not indented by two spaces:\n%s", b)
	}

	var got []map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}

	first := got[0]
	tests := []struct {
		key  string
		want any
	}{
		{"address", "AA:BB:CC:DD:EE:FF"},
		{"manufacturer", "Apple, Inc."},
		{"manufacturer_id", "0x004C"},
		{"rssi", float64(-99)},
	}
	for _, tt := range tests {
		if first[tt.key] != tt.want {
			t.Errorf("%s = %v, want %v", tt.key, first[tt.key], tt.want)
		}
	}

	sd := first["service_data"].(map[string]any)
	if v, ok := sd["180F"]; !ok || v != nil {
		t.Errorf("service_data[180F] = %v, %v; want explicit null", v, ok)
	}
	raw := first["raw_data"].(map[string]any)
	if raw["tx_power"] != float64(-12) {
		t.Errorf("raw tx_power = %v", raw["tx_power"])
	}
	if raw["manufacturer_data"].(map[string]any)["0x004C"] != "0215" {
		t.Errorf("raw manufacturer_data = %v", raw["manufacturer_data"])
	}

	second := got[1]
	if second["manufacturer_id"] != "" || second["rssi"] != float64(-999) {
		t.Errorf("second entry = %v", second)
	}
	if uuids, ok := second["service_uuids"].([]any); !ok || len(uuids) != 0 {
		t.Errorf("service_uuids = %#v, want empty array", second["service_uuids"])
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, ".ble_scan_results_*"))
	if len(leftovers) != 0 {
		t.Errorf("temporary files left behind: %v", leftovers)
	}
}

func TestWriteJSON_Empty(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteJSON(dir, nil, exportTime); !errors.Is(err, ErrNothingToExport) {
		t.Fatalf("WriteJSON() error = %v, want ErrNothingToExport", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("empty export created files: %v", entries)
	}
}

func TestWriteJSON_FilesystemError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := WriteJSON(filepath.Join(blocker, "sub"), sampleRecords(), exportTime)
	var exErr *Error
	if !errors.As(err, &exErr) {
		t.Fatalf("WriteJSON() error = %v, want *export.Error", err)
	}
	if !strings.HasPrefix(exErr.Path, blocker) {
		t.Errorf("error path = %q", exErr.Path)
	}
}
