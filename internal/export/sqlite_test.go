package export

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteSQLite(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteSQLite(context.Background(), dir, sampleRecords(), exportTime)
	if err != nil {
		t.Fatalf("WriteSQLite() error = %v", err)
	}
	if got, want := filepath.Base(path), "ble_scan_results_20240309_140506.db"; got != want {
		t.Errorf("file name = %q, want %q", got, want)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM devices`).Scan(&n); err != nil {
		t.Fatalf("count devices: %v", err)
	}
	if n != 2 {
		t.Errorf("devices = %d, want 2", n)
	}

	var mfrID, uuids string
	var rssi int
	err = conn.QueryRow(`SELECT manufacturer_id, service_uuids, rssi FROM devices WHERE mac = ?`, "AA:BB:CC:DD:EE:FF").
		Scan(&mfrID, &uuids, &rssi)
	if err != nil {
		t.Fatalf("select device: %v", err)
	}
	if mfrID != "0x004C" || uuids != `["180F","FEAA"]` || rssi != -99 {
		t.Errorf("row = %q %q %d", mfrID, uuids, rssi)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, ".ble_scan_results_*"))
	if len(leftovers) != 0 {
		t.Errorf("temporary files left behind: %v", leftovers)
	}
}

func TestWriteSQLite_Empty(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteSQLite(context.Background(), dir, nil, exportTime); !errors.Is(err, ErrNothingToExport) {
		t.Fatalf("WriteSQLite() error = %v, want ErrNothingToExport", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("empty export created files: %v", entries)
	}
}
