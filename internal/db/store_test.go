package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"blescan/internal/devices"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "capture.db"), opts...)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(addr, name string, rssi int) devices.Record {
	id := uint16(0x004C)
	data := "0102"
	return devices.Record{
		Address:          addr,
		Name:             name,
		ManufacturerName: "Apple, Inc.",
		ManufacturerID:   &id,
		ServiceUUIDs:     []string{"180F"},
		ServiceData:      map[string]*string{"180F": &data},
		RSSI:             rssi,
		LastSeen:         time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC),
		Raw: devices.RawPayload{
			ManufacturerData: map[string]string{"0x004C": "0215"},
			AdvBytes:         []byte{0x02, 0x01, 0x06},
		},
	}
}

func TestStore_InsertAdvertisementThrottle(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 3, 9, 14, 0, 0, 0, time.UTC)}
	s := openTestStore(t, WithClock(clock.now), WithThrottle(30*time.Second))

	sessionID, err := s.CreateSession(ctx, "hci0", "bluez")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	steps := []struct {
		name    string
		advance time.Duration
		addr    string
		want    bool
	}{
		{"first sighting", 0, "aa:bb:cc:dd:ee:ff", true},
		{"inside throttle", 10 * time.Second, "AA:BB:CC:DD:EE:FF", false},
		{"other address", 0, "11:22:33:44:55:66", true},
		{"after throttle", 25 * time.Second, "AA:BB:CC:DD:EE:FF", true},
	}
	for _, st := range steps {
		clock.t = clock.t.Add(st.advance)
		got, err := s.InsertAdvertisement(ctx, sessionID, record(st.addr, "Tag", -60))
		if err != nil {
			t.Fatalf("%s: InsertAdvertisement() error = %v", st.name, err)
		}
		if got != st.want {
			t.Errorf("%s: written = %v, want %v", st.name, got, st.want)
		}
	}

	stats, err := s.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("GetStatistics() error = %v", err)
	}
	want := Statistics{Sessions: 1, Devices: 2, Named: 2, WithServices: 2, Advertisements: 3}
	if stats != want {
		t.Errorf("GetStatistics() = %+v, want %+v", stats, want)
	}

	var raw string
	if err := s.db.QueryRow(`SELECT adv_raw FROM advertisements ORDER BY id LIMIT 1`).Scan(&raw); err != nil {
		t.Fatal(err)
	}
	if raw != "020106" {
		t.Errorf("adv_raw = %q", raw)
	}
}

func TestStore_InsertAdvertisementEmptyAddress(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.InsertAdvertisement(context.Background(), 1, devices.Record{}); err == nil {
		t.Fatal("InsertAdvertisement() accepted an empty address")
	}
}

func TestStore_SaveSnapshotUpserts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sessionID, err := s.CreateSession(ctx, "", "export")
	if err != nil {
		t.Fatal(err)
	}

	first := []devices.Record{record("AA:BB:CC:DD:EE:FF", "Tag", -60), {Address: "  "}}
	if err := s.SaveSnapshot(ctx, sessionID, first); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	unnamed := record("aa:bb:cc:dd:ee:ff", "", -75)
	if err := s.SaveSnapshot(ctx, sessionID, []devices.Record{unnamed}); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	var name string
	var rssi, count int
	err = s.db.QueryRow(`SELECT name, rssi, detection_count FROM devices WHERE mac = ?`, "AA:BB:CC:DD:EE:FF").
		Scan(&name, &rssi, &count)
	if err != nil {
		t.Fatal(err)
	}
	if name != "Tag" || rssi != -75 || count != 2 {
		t.Errorf("device row = %q %d %d, want Tag -75 2", name, rssi, count)
	}

	if err := s.EndSession(ctx, sessionID); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	var ended string
	if err := s.db.QueryRow(`SELECT ended_at FROM scan_sessions WHERE id = ?`, sessionID).Scan(&ended); err != nil || ended == "" {
		t.Errorf("ended_at = %q, %v", ended, err)
	}
}
