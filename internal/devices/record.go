// Package devices holds the canonical device record and the address-keyed
// table that merges repeated advertisements.
package devices

import (
	"fmt"
	"time"
)

const (
	// RSSIUnknown marks a record whose advertisement carried no reading.
	// It sorts below every real reading.
	RSSIUnknown = -999

	// RSSIFloor is the lowest real reading a record will hold.
	RSSIFloor = -99
)

// Record is the latest known state of one advertising device.
type Record struct {
	Address          string
	Name             string
	ManufacturerName string
	ManufacturerID   *uint16

	// ServiceUUIDs is ordered by first occurrence; entries are normalized.
	ServiceUUIDs []string
	// ServiceData maps each entry of ServiceUUIDs to upper-case hex, or nil
	// when the UUID was advertised without a payload.
	ServiceData map[string]*string

	RSSI     int
	LastSeen time.Time

	Raw RawPayload
}

// RawPayload is the retained inspection snapshot of the advertisement.
type RawPayload struct {
	// ManufacturerData is keyed by company id in 0x%04X form, values are upper-case hex.
	ManufacturerData map[string]string
	ServiceData      map[string]*string
	TxPower          *int
	PlatformData     string
	// AdvBytes holds the raw advertising PDU when the host stack exposes it.
	AdvBytes []byte
}

// ClampRSSI applies the stored-reading rule: nil becomes RSSIUnknown,
// readings below RSSIFloor are raised to it.
func ClampRSSI(rssi *int) int {
	if rssi == nil {
		return RSSIUnknown
	}
	return max(*rssi, RSSIFloor)
}

// ManufacturerIDString renders the company id as 0x004C, or "" when absent.
func (r Record) ManufacturerIDString() string {
	if r.ManufacturerID == nil {
		return ""
	}
	return fmt.Sprintf("0x%04X", *r.ManufacturerID)
}

// LastSeenDisplay renders LastSeen at second precision.
func (r Record) LastSeenDisplay() string {
	if r.LastSeen.IsZero() {
		return ""
	}
	return r.LastSeen.Format("15:04:05")
}

// HasRSSI reports whether the record carries a real reading.
func (r Record) HasRSSI() bool {
	return r.RSSI != RSSIUnknown
}

// Clone returns a deep copy so snapshots handed to other goroutines never
// alias the table's storage.
func (r Record) Clone() Record {
	out := r
	if r.ManufacturerID != nil {
		id := *r.ManufacturerID
		out.ManufacturerID = &id
	}
	out.ServiceUUIDs = append([]string(nil), r.ServiceUUIDs...)
	out.ServiceData = cloneOptional(r.ServiceData)

	if r.Raw.ManufacturerData != nil {
		out.Raw.ManufacturerData = make(map[string]string, len(r.Raw.ManufacturerData))
		for k, v := range r.Raw.ManufacturerData {
			out.Raw.ManufacturerData[k] = v
		}
	}
	out.Raw.ServiceData = cloneOptional(r.Raw.ServiceData)
	if r.Raw.TxPower != nil {
		tx := *r.Raw.TxPower
		out.Raw.TxPower = &tx
	}
	if r.Raw.AdvBytes != nil {
		out.Raw.AdvBytes = append([]byte(nil), r.Raw.AdvBytes...)
	}
	return out
}

func cloneOptional(m map[string]*string) map[string]*string {
	if m == nil {
		return nil
	}
	out := make(map[string]*string, len(m))
	for k, v := range m {
		if v == nil {
			out[k] = nil
			continue
		}
		s := *v
		out[k] = &s
	}
	return out
}
