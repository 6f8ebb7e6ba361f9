package bluetooth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"blescan/internal/devices"
	"blescan/internal/hexdump"
	"blescan/internal/ids"
	"blescan/internal/util"
)

// Decoder turns RawEvents into canonical device records.
//
// A Decoder holds no mutable state and may be shared.
type Decoder struct {
	registry *ids.Registry
	now      func() time.Time
	probe    func() string
}

type DecoderOption func(*Decoder)

// WithClock overrides the capture clock (tests).
func WithClock(now func() time.Time) DecoderOption {
	return func(d *Decoder) { d.now = now }
}

// WithProbe attaches platform diagnostics to decode errors.
func WithProbe(probe func() string) DecoderOption {
	return func(d *Decoder) { d.probe = probe }
}

func NewDecoder(reg *ids.Registry, opts ...DecoderOption) *Decoder {
	if reg == nil {
		reg = ids.DefaultRegistry()
	}
	d := &Decoder{registry: reg, now: time.Now}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Decode normalizes one event. It never panics: any failure, including a
// panic in a helper, is returned as a *ScanError of KindDecode.
func (d *Decoder) Decode(ev RawEvent) (rec devices.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = devices.Record{}
			err = d.decodeError(ev.Address, "unexpected event data", fmt.Errorf("panic: %v", r))
		}
	}()

	addr := util.NormalizeAddress(ev.Address)
	if addr == "" {
		return devices.Record{}, d.decodeError(ev.Address, "event has no address", nil)
	}

	rec = devices.Record{
		Address:  addr,
		RSSI:     devices.ClampRSSI(ev.RSSI),
		LastSeen: d.now(),
	}
	if ev.LocalName != nil {
		rec.Name = strings.TrimSpace(*ev.LocalName)
	}

	mfg, err := d.decodeManufacturer(ev)
	if err != nil {
		return devices.Record{}, err
	}
	rec.Raw.ManufacturerData = mfg
	if len(ev.ManufacturerData) > 0 {
		id := uint16(ev.ManufacturerData[0].CompanyID)
		rec.ManufacturerID = &id
		rec.ManufacturerName = d.registry.ManufacturerName(id)
	}

	rec.ServiceUUIDs, rec.ServiceData, rec.Raw.ServiceData = decodeServices(ev)

	if ev.TxPower != nil {
		tx := *ev.TxPower
		rec.Raw.TxPower = &tx
	} else if len(ev.AdvBytes) > 0 {
		rec.Raw.TxPower = TxPowerFromAdv(ev.AdvBytes)
	}
	rec.Raw.PlatformData = platformString(ev.Platform)
	if len(ev.AdvBytes) > 0 {
		rec.Raw.AdvBytes = append([]byte(nil), ev.AdvBytes...)
	}
	return rec, nil
}

func (d *Decoder) decodeManufacturer(ev RawEvent) (map[string]string, error) {
	if len(ev.ManufacturerData) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(ev.ManufacturerData))
	for _, m := range ev.ManufacturerData {
		if m.CompanyID < 0 || m.CompanyID > 0xFFFF {
			return nil, d.decodeError(ev.Address, fmt.Sprintf("company id %d out of range", m.CompanyID), nil)
		}
		key := ids.FormatCompanyID(uint16(m.CompanyID))
		if _, dup := out[key]; dup {
			continue
		}
		out[key] = hexdump.Hex(m.Data)
	}
	return out, nil
}

// decodeServices builds the union of advertised UUIDs and service-data keys
// in first-occurrence order. UUIDs seen only in the list map to nil.
func decodeServices(ev RawEvent) (uuids []string, data, raw map[string]*string) {
	data = make(map[string]*string, len(ev.ServiceUUIDs)+len(ev.ServiceData))
	add := func(u string) string {
		n := ids.NormalizeUUID(strings.TrimSpace(u))
		if n == "" {
			return ""
		}
		if _, seen := data[n]; !seen {
			uuids = append(uuids, n)
			data[n] = nil
		}
		return n
	}

	for _, u := range ev.ServiceUUIDs {
		add(u)
	}
	for _, sd := range ev.ServiceData {
		n := add(sd.UUID)
		if n == "" || data[n] != nil {
			continue
		}
		h := hexdump.Hex(sd.Data)
		data[n] = &h
		if raw == nil {
			raw = make(map[string]*string, len(ev.ServiceData))
		}
		raw[n] = &h
	}
	return uuids, data, raw
}

// platformString serializes the opaque backend payload best-effort.
func platformString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return hexdump.Spaced(t)
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

func (d *Decoder) decodeError(address, message string, err error) *ScanError {
	se := NewDecodeError(address, message, err)
	if d.probe != nil {
		se.Probe = d.probe()
	}
	return se
}
