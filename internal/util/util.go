package util

import (
	"regexp"
	"strings"
	"time"
)

var (
	macRe = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)
)

func IsMACAddress(s string) bool {
	return macRe.MatchString(strings.TrimSpace(s))
}

// NormalizeAddress upper-cases MAC-shaped addresses and uses ':' as the
// separator. Anything else (platform identifiers) is returned trimmed but
// otherwise verbatim.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if !IsMACAddress(addr) {
		return addr
	}
	return strings.ToUpper(strings.ReplaceAll(addr, "-", ":"))
}

func FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// SafeName returns a display name, "Unknown" when the advertised name is
// empty or merely repeats the address.
func SafeName(localName string) string {
	name := strings.TrimSpace(localName)
	if name == "" {
		return "Unknown"
	}
	if IsMACAddress(name) {
		return "Unknown"
	}
	return name
}
