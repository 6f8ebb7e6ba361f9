package ids

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// sigBaseSuffix is the fixed tail of the Bluetooth SIG base UUID
// 0000xxxx-0000-1000-8000-00805f9b34fb.
const sigBaseSuffix = "-0000-1000-8000-00805f9b34fb"

// NormalizeUUID canonicalizes a service UUID for display.
//
// A 128-bit UUID built on the SIG base whose first group starts with "0000"
// is reduced to its embedded 16-bit value in upper case (e.g. "180F").
// Everything else (32-bit SIG UUIDs, vendor UUIDs, malformed input) is
// returned unchanged.
func NormalizeUUID(s string) string {
	if len(s) != 36 {
		return s
	}
	parts := strings.Split(s, "-")
	if len(parts) != 5 {
		return s
	}
	if !strings.EqualFold(s[8:], sigBaseSuffix) {
		return s
	}
	if len(parts[0]) != 8 || !strings.HasPrefix(parts[0], "0000") {
		return s
	}
	return strings.ToUpper(parts[0][4:])
}

type uuidFile struct {
	UUIDs []uuidEntry `yaml:"uuids"`
}

type uuidEntry struct {
	UUID any    `yaml:"uuid"`
	Name string `yaml:"name"`
}

// LoadUUIDYaml reads a Bluetooth SIG service_uuids.yaml document.
//
// Keys are returned as canonical 128-bit lower-case UUID strings.
func LoadUUIDYaml(r io.Reader) (map[string]string, error) {
	var f uuidFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode uuid yaml: %w", err)
	}

	out := make(map[string]string, len(f.UUIDs))
	for _, e := range f.UUIDs {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		uuid128, err := ExpandUUID(yamlNumberString(e.UUID))
		if err != nil {
			continue
		}
		out[uuid128] = name
	}
	return out, nil
}

// yamlNumberString turns a YAML scalar (SIG files mix 0x1800 ints and strings)
// into a string ExpandUUID understands.
func yamlNumberString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case int:
		return shortHex(uint64(t))
	case int64:
		return shortHex(uint64(t))
	case uint64:
		return shortHex(t)
	default:
		return ""
	}
}

func shortHex(v uint64) string {
	if v <= 0xFFFF {
		return fmt.Sprintf("0x%04X", v)
	}
	return fmt.Sprintf("0x%08X", v)
}

// ExpandUUID converts a short (16/32-bit, with or without 0x) or 128-bit UUID
// into the canonical lower-case 128-bit form.
func ExpandUUID(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", ErrBadUUID
	}
	hexStr := strings.TrimPrefix(s, "0x")

	switch len(hexStr) {
	case 4:
		v, err := strconv.ParseUint(hexStr, 16, 16)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrBadUUID, s)
		}
		return fmt.Sprintf("0000%04x%s", v, sigBaseSuffix), nil
	case 8:
		v, err := strconv.ParseUint(hexStr, 16, 32)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrBadUUID, s)
		}
		return fmt.Sprintf("%08x%s", v, sigBaseSuffix), nil
	}

	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrBadUUID, s)
	}
	return u.String(), nil
}
