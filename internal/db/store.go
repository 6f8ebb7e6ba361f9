package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"blescan/internal/devices"
	"blescan/internal/hexdump"
	"blescan/internal/util"
)

// DefaultAdvertisementThrottle bounds how often one address is written to
// the advertisements log.
const DefaultAdvertisementThrottle = 30 * time.Second

type Store struct {
	mu sync.Mutex
	db *sql.DB

	throttle time.Duration
	// lastAdvAt caches the last advertisement write per address so the
	// throttle does not need a SELECT per observation.
	lastAdvAt map[string]time.Time
	now       func() time.Time
}

type Option func(*Store)

// WithThrottle sets the per-address advertisement write interval. Zero or
// negative logs every observation.
func WithThrottle(d time.Duration) Option {
	return func(s *Store) { s.throttle = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func Open(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite is effectively single-writer; keep one connection to avoid
	// SQLITE_BUSY when the session observer and exports write concurrently.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	_, _ = db.Exec(`PRAGMA foreign_keys = ON;`)

	s := &Store{
		db:        db,
		throttle:  DefaultAdvertisementThrottle,
		lastAdvAt: map[string]time.Time{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS scan_sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TEXT,
	ended_at TEXT,
	adapter TEXT,
	backend TEXT
);
`)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS devices (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER,
	mac TEXT UNIQUE COLLATE NOCASE,
	name TEXT,
	manufacturer_name TEXT,
	manufacturer_id TEXT,
	service_uuids TEXT,
	service_data TEXT,
	rssi INTEGER,
	tx_power INTEGER,
	manufacturer_data TEXT,
	platform_data TEXT,
	last_seen TEXT,
	detection_count INTEGER DEFAULT 1
);
`)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS advertisements (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER,
	mac TEXT,
	timestamp TEXT,
	rssi INTEGER,
	adv_raw TEXT,
	adv_json TEXT,
	FOREIGN KEY(session_id) REFERENCES scan_sessions(id) ON DELETE CASCADE
);
`)
	if err != nil {
		return err
	}
	_ = execIgnore(s.db, ctx, `CREATE INDEX IF NOT EXISTS idx_advertisements_mac ON advertisements(mac)`)
	_ = execIgnore(s.db, ctx, `CREATE INDEX IF NOT EXISTS idx_advertisements_session_id ON advertisements(session_id)`)
	return nil
}

func execIgnore(db *sql.DB, ctx context.Context, q string) error {
	_, err := db.ExecContext(ctx, q)
	return err
}

func (s *Store) CreateSession(ctx context.Context, adapter, backend string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `INSERT INTO scan_sessions (started_at, adapter, backend) VALUES (?, ?, ?)`,
		util.FormatTimestamp(s.now()),
		adapter,
		backend,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) EndSession(ctx context.Context, sessionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `UPDATE scan_sessions SET ended_at = ? WHERE id = ?`, util.FormatTimestamp(s.now()), sessionID)
	return err
}

// InsertAdvertisement logs rec for the session and refreshes its devices row.
// Writes for one address are throttled; it reports whether a row was written.
func (s *Store) InsertAdvertisement(ctx context.Context, sessionID int64, rec devices.Record) (bool, error) {
	mac := normalizeMAC(rec.Address)
	if mac == "" {
		return false, errors.New("empty MAC")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if last, ok := s.lastAdvAt[mac]; ok && s.throttle > 0 && now.Sub(last) < s.throttle {
		return false, nil
	}

	advJSON, err := json.Marshal(newAdvertisement(rec))
	if err != nil {
		return false, fmt.Errorf("encode advertisement %s: %w", mac, err)
	}
	var advRaw *string
	if len(rec.Raw.AdvBytes) > 0 {
		h := hexdump.Hex(rec.Raw.AdvBytes)
		advRaw = &h
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO advertisements (session_id, mac, timestamp, rssi, adv_raw, adv_json)
VALUES (?, ?, ?, ?, ?, ?)
`, sessionID, mac, util.FormatTimestamp(now), rec.RSSI, optString(advRaw), string(advJSON))
	if err != nil {
		return false, err
	}
	if err := upsertDevice(ctx, tx, sessionID, rec); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	s.lastAdvAt[mac] = now
	return true, nil
}

// SaveSnapshot upserts every record into devices in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, sessionID int64, records []devices.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range records {
		if normalizeMAC(rec.Address) == "" {
			continue
		}
		if err := upsertDevice(ctx, tx, sessionID, rec); err != nil {
			return fmt.Errorf("save %s: %w", rec.Address, err)
		}
	}
	return tx.Commit()
}

func upsertDevice(ctx context.Context, tx *sql.Tx, sessionID int64, rec devices.Record) error {
	uuids, err := json.Marshal(nonNilSlice(rec.ServiceUUIDs))
	if err != nil {
		return err
	}
	serviceData, err := json.Marshal(nonNilMap(rec.ServiceData))
	if err != nil {
		return err
	}
	mfrData, err := json.Marshal(nonNilMap(rec.Raw.ManufacturerData))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO devices (
	session_id, mac, name, manufacturer_name, manufacturer_id, service_uuids, service_data,
	rssi, tx_power, manufacturer_data, platform_data, last_seen, detection_count
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
ON CONFLICT(mac) DO UPDATE SET
	session_id = excluded.session_id,
	name = CASE WHEN excluded.name != '' THEN excluded.name ELSE devices.name END,
	manufacturer_name = excluded.manufacturer_name,
	manufacturer_id = excluded.manufacturer_id,
	service_uuids = excluded.service_uuids,
	service_data = excluded.service_data,
	rssi = excluded.rssi,
	tx_power = excluded.tx_power,
	manufacturer_data = excluded.manufacturer_data,
	platform_data = excluded.platform_data,
	last_seen = excluded.last_seen,
	detection_count = devices.detection_count + 1
`,
		sessionID,
		normalizeMAC(rec.Address),
		rec.Name,
		rec.ManufacturerName,
		rec.ManufacturerIDString(),
		string(uuids),
		string(serviceData),
		rec.RSSI,
		optInt(rec.Raw.TxPower),
		string(mfrData),
		rec.Raw.PlatformData,
		rec.LastSeen.Format(time.RFC3339Nano),
	)
	return err
}

// advertisement is the adv_json column layout.
type advertisement struct {
	Address          string             `json:"address"`
	Name             string             `json:"name,omitempty"`
	RSSI             int                `json:"rssi"`
	ManufacturerID   string             `json:"manufacturer_id,omitempty"`
	ManufacturerData map[string]string  `json:"manufacturer_data,omitempty"`
	ServiceUUIDs     []string           `json:"service_uuids,omitempty"`
	ServiceData      map[string]*string `json:"service_data,omitempty"`
	TxPower          *int               `json:"tx_power,omitempty"`
	PlatformData     string             `json:"platform_data,omitempty"`
}

func newAdvertisement(rec devices.Record) advertisement {
	return advertisement{
		Address:          rec.Address,
		Name:             rec.Name,
		RSSI:             rec.RSSI,
		ManufacturerID:   rec.ManufacturerIDString(),
		ManufacturerData: rec.Raw.ManufacturerData,
		ServiceUUIDs:     rec.ServiceUUIDs,
		ServiceData:      rec.ServiceData,
		TxPower:          rec.Raw.TxPower,
		PlatformData:     rec.Raw.PlatformData,
	}
}

type Statistics struct {
	Sessions       int
	Devices        int
	Named          int
	WithServices   int
	Advertisements int
}

func (s *Store) GetStatistics(ctx context.Context) (Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Statistics
	queries := []struct {
		q   string
		dst *int
	}{
		{`SELECT COUNT(*) FROM scan_sessions`, &st.Sessions},
		{`SELECT COUNT(*) FROM devices`, &st.Devices},
		{`SELECT COUNT(*) FROM devices WHERE name IS NOT NULL AND name != ''`, &st.Named},
		{`SELECT COUNT(*) FROM devices WHERE service_uuids IS NOT NULL AND service_uuids != '[]'`, &st.WithServices},
		{`SELECT COUNT(*) FROM advertisements`, &st.Advertisements},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.q).Scan(q.dst); err != nil {
			return Statistics{}, err
		}
	}
	return st, nil
}

func normalizeMAC(mac string) string {
	return strings.ToUpper(strings.TrimSpace(mac))
}

func optString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func optInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nonNilSlice(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}
	return m
}
