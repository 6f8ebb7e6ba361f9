package bluetooth

import (
	"slices"
	"testing"

	"github.com/godbus/dbus/v5"
)

const testDevPath = dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF")

func deviceProps() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"Address":     dbus.MakeVariant("AA:BB:CC:DD:EE:FF"),
		"AddressType": dbus.MakeVariant("random"),
		"Name":        dbus.MakeVariant("Tag"),
		"RSSI":        dbus.MakeVariant(int16(-61)),
		"UUIDs":       dbus.MakeVariant([]string{"0000180f-0000-1000-8000-00805f9b34fb"}),
		"ManufacturerData": dbus.MakeVariant(map[uint16]dbus.Variant{
			0x004C: dbus.MakeVariant([]byte{0x02, 0x15}),
			0x0006: dbus.MakeVariant([]byte{0x01}),
		}),
		"ServiceData": dbus.MakeVariant(map[string]dbus.Variant{
			"0000feaa-0000-1000-8000-00805f9b34fb": dbus.MakeVariant([]byte{0x10}),
		}),
	}
}

func TestEventFromProps(t *testing.T) {
	ev, ok := eventFromProps("hci0", deviceProps())
	if !ok {
		t.Fatal("eventFromProps() rejected a device")
	}
	if ev.Address != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("address = %q", ev.Address)
	}
	if ev.LocalName == nil || *ev.LocalName != "Tag" {
		t.Errorf("local name = %v", ev.LocalName)
	}
	if ev.RSSI == nil || *ev.RSSI != -61 {
		t.Errorf("rssi = %v", ev.RSSI)
	}
	if len(ev.ManufacturerData) != 2 || ev.ManufacturerData[0].CompanyID != 0x0006 {
		t.Errorf("manufacturer data = %+v, want sorted by company id", ev.ManufacturerData)
	}
	if len(ev.ServiceData) != 1 || ev.ServiceData[0].Data[0] != 0x10 {
		t.Errorf("service data = %+v", ev.ServiceData)
	}
	platform, ok := ev.Platform.(map[string]any)
	if !ok {
		t.Fatalf("platform = %T", ev.Platform)
	}
	if platform["adapter"] != "hci0" {
		t.Errorf("platform adapter = %v", platform["adapter"])
	}
	if class, _ := platform["address_class"].(AddressClass); class.Type != "random" {
		t.Errorf("platform address class = %v", platform["address_class"])
	}
}

func TestEventFromProps_NoAddress(t *testing.T) {
	if _, ok := eventFromProps("hci0", map[string]dbus.Variant{"RSSI": dbus.MakeVariant(int16(-50))}); ok {
		t.Fatal("eventFromProps() accepted props without an address")
	}
}

func TestDeviceCache_Seed(t *testing.T) {
	noRSSI := deviceProps()
	delete(noRSSI, "RSSI")
	noRSSI["Address"] = dbus.MakeVariant("11:22:33:44:55:66")

	managed := map[dbus.ObjectPath]map[string]map[string]dbus.Variant{
		"/org/bluez/hci0":                            {bluezAdapterIface: {}},
		testDevPath:                                  {bluezDeviceIface: deviceProps()},
		"/org/bluez/hci0/dev_11_22_33_44_55_66":      {bluezDeviceIface: noRSSI},
		"/org/bluez/hci1/dev_01_02_03_04_05_06":      {bluezDeviceIface: deviceProps()},
		testDevPath + "/service000a":                 {"org.bluez.GattService1": {}},
		"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/char": {bluezDeviceIface: deviceProps()},
	}

	c := newDeviceCache("hci0")
	evs := c.seed(managed)
	if len(evs) != 1 || evs[0].Address != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("seed() = %+v, want the one hci0 device with RSSI", evs)
	}
	if len(c.props) != 2 {
		t.Errorf("cache holds %d devices, want 2", len(c.props))
	}
}

func TestDeviceCache_Apply(t *testing.T) {
	c := newDeviceCache("hci0")

	added := &dbus.Signal{
		Name: objectManagerIface + ".InterfacesAdded",
		Path: "/",
		Body: []any{testDevPath, map[string]map[string]dbus.Variant{bluezDeviceIface: deviceProps()}},
	}
	ev, ok := c.apply(added)
	if !ok || ev.Address != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("InterfacesAdded -> %+v, %v", ev, ok)
	}

	rssiChange := &dbus.Signal{
		Name: propertiesIface + ".PropertiesChanged",
		Path: testDevPath,
		Body: []any{bluezDeviceIface, map[string]dbus.Variant{"RSSI": dbus.MakeVariant(int16(-80))}, []string{}},
	}
	ev, ok = c.apply(rssiChange)
	if !ok {
		t.Fatal("RSSI change should yield an event")
	}
	if *ev.RSSI != -80 || ev.LocalName == nil || *ev.LocalName != "Tag" {
		t.Errorf("merged event = rssi %v name %v", ev.RSSI, ev.LocalName)
	}
	if !slices.Equal(ev.ServiceUUIDs, []string{"0000180f-0000-1000-8000-00805f9b34fb"}) {
		t.Errorf("service uuids lost in merge: %v", ev.ServiceUUIDs)
	}

	tests := []struct {
		name string
		sig  *dbus.Signal
	}{
		{
			name: "connection state only",
			sig: &dbus.Signal{
				Name: propertiesIface + ".PropertiesChanged",
				Path: testDevPath,
				Body: []any{bluezDeviceIface, map[string]dbus.Variant{"Connected": dbus.MakeVariant(true)}, []string{}},
			},
		},
		{
			name: "other interface",
			sig: &dbus.Signal{
				Name: propertiesIface + ".PropertiesChanged",
				Path: testDevPath,
				Body: []any{"org.bluez.Battery1", map[string]dbus.Variant{"Percentage": dbus.MakeVariant(byte(50))}, []string{}},
			},
		},
		{
			name: "other adapter",
			sig: &dbus.Signal{
				Name: propertiesIface + ".PropertiesChanged",
				Path: "/org/bluez/hci1/dev_AA_BB_CC_DD_EE_FF",
				Body: []any{bluezDeviceIface, map[string]dbus.Variant{"RSSI": dbus.MakeVariant(int16(-50))}, []string{}},
			},
		},
		{name: "nil", sig: nil},
		{name: "short body", sig: &dbus.Signal{Name: objectManagerIface + ".InterfacesAdded"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := c.apply(tt.sig); ok {
				t.Error("apply() yielded an event")
			}
		})
	}

	rssiGone := &dbus.Signal{
		Name: propertiesIface + ".PropertiesChanged",
		Path: testDevPath,
		Body: []any{bluezDeviceIface, map[string]dbus.Variant{"Name": dbus.MakeVariant("Tag2")}, []string{"RSSI"}},
	}
	ev, ok = c.apply(rssiGone)
	if !ok || ev.RSSI != nil {
		t.Errorf("invalidated RSSI should be dropped: %+v %v", ev.RSSI, ok)
	}

	removed := &dbus.Signal{
		Name: objectManagerIface + ".InterfacesRemoved",
		Path: "/",
		Body: []any{testDevPath, []string{bluezDeviceIface}},
	}
	if _, ok := c.apply(removed); ok {
		t.Error("InterfacesRemoved should not yield an event")
	}
	if _, ok := c.props[testDevPath]; ok {
		t.Error("removed device still cached")
	}
}

func TestSanitizeDBusValue(t *testing.T) {
	got := sanitizeDBusValue(map[uint16]dbus.Variant{0x004C: dbus.MakeVariant([]byte{0xAB, 0x01})})
	m, ok := got.(map[string]any)
	if !ok || m["0x004C"] != "AB 01" {
		t.Errorf("sanitizeDBusValue() = %#v", got)
	}
	if got := sanitizeDBusValue(dbus.ObjectPath("/org/bluez")); got != "/org/bluez" {
		t.Errorf("object path = %#v", got)
	}
}

func TestAdaptersFromManaged(t *testing.T) {
	managed := map[dbus.ObjectPath]map[string]map[string]dbus.Variant{
		"/org/bluez/hci1": {bluezAdapterIface: {
			"Address": dbus.MakeVariant("00:1a:7d:da:71:13"),
			"Alias":   dbus.MakeVariant("dongle"),
			"Powered": dbus.MakeVariant(true),
		}},
		"/org/bluez/hci0": {bluezAdapterIface: {"Name": dbus.MakeVariant("builtin")}},
		testDevPath:       {bluezDeviceIface: deviceProps()},
	}
	got := adaptersFromManaged(managed)
	if len(got) != 2 {
		t.Fatalf("adaptersFromManaged() = %+v", got)
	}
	if got[0].ID != "hci0" || got[0].Name != "builtin" {
		t.Errorf("first adapter = %+v", got[0])
	}
	if got[1].Address != "00:1A:7D:DA:71:13" || !got[1].Powered || got[1].Name != "dongle" {
		t.Errorf("second adapter = %+v", got[1])
	}
}

func TestParseHCIConfig(t *testing.T) {
	out := []byte("hci1:\tType: Primary  Bus: USB\n\tBD Address: 00:1A:7D:DA:71:13\n\nhci0:\tType: Primary\n\tUP RUNNING\n")
	got := parseHCIConfig(out)
	want := []InterfaceInfo{{ID: "hci1", BusInfo: "USB"}, {ID: "hci0", BusInfo: "Unknown"}}
	if !slices.Equal(got, want) {
		t.Errorf("parseHCIConfig() = %+v, want %+v", got, want)
	}
}
