package ids

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// LoadOUI reads vendor names keyed by OUI (6 upper-case hex digits) from an
// IEEE MA-L CSV export (Registry,Assignment,Organization Name,...).
// The header row is skipped; rows with a malformed assignment are ignored.
func LoadOUI(r io.Reader) (map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]string{}, nil
		}
		return nil, err
	}

	out := make(map[string]string, 1024)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 3 {
			continue
		}
		oui := compactHex(rec[1])
		org := strings.TrimSpace(rec[2])
		if len(oui) != 6 || org == "" {
			continue
		}
		out[oui] = org
	}
	return out, nil
}

func compactHex(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", ":", "").Replace(s)
}

// macToOUI extracts the first three octets of AA:BB:CC:DD:EE:FF or AA-BB-...
// Returns "" for anything that is not MAC shaped (e.g. CoreBluetooth UUIDs).
func macToOUI(mac string) string {
	parts := strings.FieldsFunc(strings.TrimSpace(mac), func(r rune) bool {
		return r == ':' || r == '-'
	})
	if len(parts) != 6 {
		return ""
	}
	oui := strings.ToUpper(parts[0] + parts[1] + parts[2])
	if len(oui) != 6 {
		return ""
	}
	return oui
}
