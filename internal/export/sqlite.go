package export

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"blescan/internal/db"
	"blescan/internal/devices"
)

// WriteSQLite writes records into a fresh database at
// dir/ble_scan_results_<timestamp>.db and returns the file path. Like
// WriteJSON, the file only appears once it is complete.
func WriteSQLite(ctx context.Context, dir string, records []devices.Record, now time.Time) (string, error) {
	if len(records) == 0 {
		return "", ErrNothingToExport
	}
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, FileName(now, ".db"))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &Error{Path: path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".ble_scan_results_*.tmp")
	if err != nil {
		return "", &Error{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	_ = tmp.Close()

	if err := writeSnapshotDB(ctx, tmpName, records, now); err != nil {
		os.Remove(tmpName)
		return "", &Error{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", &Error{Path: path, Err: err}
	}
	return path, nil
}

func writeSnapshotDB(ctx context.Context, path string, records []devices.Record, now time.Time) error {
	store, err := db.Open(path, db.WithClock(func() time.Time { return now }))
	if err != nil {
		return err
	}
	sessionID, err := store.CreateSession(ctx, "", "export")
	if err != nil {
		store.Close()
		return err
	}
	if err := store.SaveSnapshot(ctx, sessionID, records); err != nil {
		store.Close()
		return err
	}
	if err := store.EndSession(ctx, sessionID); err != nil {
		store.Close()
		return err
	}
	return store.Close()
}
