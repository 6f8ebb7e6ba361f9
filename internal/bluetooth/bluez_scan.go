package bluetooth

import (
	"context"
	"fmt"
	"iter"
	"reflect"
	"slices"
	"strings"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"blescan/internal/hexdump"
	"blescan/internal/logging"
)

const (
	bluezService       = "org.bluez"
	bluezAdapterIface  = "org.bluez.Adapter1"
	bluezDeviceIface   = "org.bluez.Device1"
	objectManagerIface = "org.freedesktop.DBus.ObjectManager"
	propertiesIface    = "org.freedesktop.DBus.Properties"
)

// Properties whose change means a new advertisement was received.
var advertisementProps = []string{"RSSI", "ManufacturerData", "ServiceData", "TxPower", "UUIDs", "Name"}

// BlueZSource reads LE discovery results from BlueZ over D-Bus in pull mode.
// Device1 objects already known when the scan starts are reported once if
// they carry an RSSI; after that every InterfacesAdded and advertisement
// PropertiesChanged signal yields one event.
type BlueZSource struct {
	AdapterID string

	// Connect opens the bus connection; nil means a private system bus connection.
	Connect func() (*dbus.Conn, error)
}

func NewBlueZSource(adapterID string) *BlueZSource {
	adapterID = strings.TrimSpace(adapterID)
	if adapterID == "" {
		adapterID = "hci0"
	}
	return &BlueZSource{AdapterID: adapterID}
}

func (s *BlueZSource) Name() string { return "bluez" }

func (s *BlueZSource) adapterPath() dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + s.AdapterID)
}

func (s *BlueZSource) Events(ctx context.Context) iter.Seq2[RawEvent, error] {
	return func(yield func(RawEvent, error) bool) {
		connect := s.Connect
		if connect == nil {
			connect = func() (*dbus.Conn, error) { return dbus.ConnectSystemBus() }
		}
		conn, err := connect()
		if err != nil {
			yield(RawEvent{}, NewStartupError("connect to system bus", err))
			return
		}
		defer conn.Close()

		if !bluezAdapterExists(ctx, conn, s.AdapterID) {
			yield(RawEvent{}, NewStartupError(fmt.Sprintf("adapter %s not found", s.AdapterID), nil))
			return
		}

		signals := make(chan *dbus.Signal, 256)
		conn.Signal(signals)
		defer conn.RemoveSignal(signals)

		matches := [][]dbus.MatchOption{
			{dbus.WithMatchSender(bluezService), dbus.WithMatchInterface(objectManagerIface), dbus.WithMatchMember("InterfacesAdded")},
			{dbus.WithMatchSender(bluezService), dbus.WithMatchInterface(objectManagerIface), dbus.WithMatchMember("InterfacesRemoved")},
			{dbus.WithMatchSender(bluezService), dbus.WithMatchInterface(propertiesIface), dbus.WithMatchMember("PropertiesChanged")},
		}
		for _, m := range matches {
			if err := conn.AddMatchSignal(m...); err != nil {
				yield(RawEvent{}, NewStartupError("subscribe to bluez signals", err))
				return
			}
			defer conn.RemoveMatchSignal(m...)
		}

		adapter := conn.Object(bluezService, s.adapterPath())
		_ = adapter.CallWithContext(ctx, bluezAdapterIface+".SetDiscoveryFilter", 0, map[string]dbus.Variant{
			"Transport":     dbus.MakeVariant("le"),
			"DuplicateData": dbus.MakeVariant(true),
		}).Err
		if err := adapter.CallWithContext(ctx, bluezAdapterIface+".StartDiscovery", 0).Err; err != nil {
			if !strings.Contains(err.Error(), "InProgress") {
				yield(RawEvent{}, NewStartupError("start discovery on "+s.AdapterID, err))
				return
			}
		}
		defer func() {
			// ctx is usually cancelled by now.
			_ = adapter.Call(bluezAdapterIface+".StopDiscovery", 0).Err
			_ = adapter.Call(bluezAdapterIface+".SetDiscoveryFilter", 0, map[string]dbus.Variant{}).Err
		}()
		logging.Debug("bluez discovery started", zap.String("adapter", s.AdapterID))

		cache := newDeviceCache(s.AdapterID)

		managed, err := getManagedObjects(ctx, conn)
		if err != nil {
			yield(RawEvent{}, NewStartupError("list bluez objects", err))
			return
		}
		for _, ev := range cache.seed(managed) {
			if !yield(ev, nil) {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					yield(RawEvent{}, NewSessionError("bluez signal channel closed", nil))
					return
				}
				ev, ok := cache.apply(sig)
				if !ok {
					continue
				}
				if !yield(ev, nil) {
					return
				}
			}
		}
	}
}

func getManagedObjects(ctx context.Context, conn *dbus.Conn) (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	root := conn.Object(bluezService, dbus.ObjectPath("/"))
	call := root.CallWithContext(ctx, objectManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, call.Err
	}
	var managed map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if err := call.Store(&managed); err != nil {
		return nil, err
	}
	return managed, nil
}

// deviceCache merges Device1 property updates per object path so that each
// emitted event carries the full advertisement state.
type deviceCache struct {
	adapterID string
	prefix    string
	props     map[dbus.ObjectPath]map[string]dbus.Variant
}

func newDeviceCache(adapterID string) *deviceCache {
	return &deviceCache{
		adapterID: adapterID,
		prefix:    "/org/bluez/" + adapterID + "/dev_",
		props:     make(map[dbus.ObjectPath]map[string]dbus.Variant),
	}
}

func (c *deviceCache) owns(path dbus.ObjectPath) bool {
	p := string(path)
	// skip GATT children (dev_XX/serviceNNNN)
	return strings.HasPrefix(p, c.prefix) && !strings.Contains(p[len(c.prefix):], "/")
}

// seed records the devices BlueZ already knows and returns events for those
// with a current RSSI, in path order.
func (c *deviceCache) seed(managed map[dbus.ObjectPath]map[string]map[string]dbus.Variant) []RawEvent {
	paths := make([]dbus.ObjectPath, 0, len(managed))
	for path, ifaces := range managed {
		if _, ok := ifaces[bluezDeviceIface]; ok && c.owns(path) {
			paths = append(paths, path)
		}
	}
	slices.Sort(paths)

	var out []RawEvent
	for _, path := range paths {
		props := copyProps(managed[path][bluezDeviceIface])
		c.props[path] = props
		if _, ok := props["RSSI"]; !ok {
			continue
		}
		if ev, ok := eventFromProps(c.adapterID, props); ok {
			out = append(out, ev)
		}
	}
	return out
}

// apply folds one signal into the cache and reports whether it represents
// an advertisement.
func (c *deviceCache) apply(sig *dbus.Signal) (RawEvent, bool) {
	if sig == nil {
		return RawEvent{}, false
	}
	switch sig.Name {
	case objectManagerIface + ".InterfacesAdded":
		if len(sig.Body) < 2 {
			return RawEvent{}, false
		}
		path, ok := sig.Body[0].(dbus.ObjectPath)
		if !ok || !c.owns(path) {
			return RawEvent{}, false
		}
		ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
		if !ok {
			return RawEvent{}, false
		}
		dev, ok := ifaces[bluezDeviceIface]
		if !ok {
			return RawEvent{}, false
		}
		props := copyProps(dev)
		c.props[path] = props
		return eventFromProps(c.adapterID, props)

	case objectManagerIface + ".InterfacesRemoved":
		if len(sig.Body) < 1 {
			return RawEvent{}, false
		}
		if path, ok := sig.Body[0].(dbus.ObjectPath); ok {
			delete(c.props, path)
		}
		return RawEvent{}, false

	case propertiesIface + ".PropertiesChanged":
		if !c.owns(sig.Path) || len(sig.Body) < 2 {
			return RawEvent{}, false
		}
		if iface, _ := sig.Body[0].(string); iface != bluezDeviceIface {
			return RawEvent{}, false
		}
		changed, ok := sig.Body[1].(map[string]dbus.Variant)
		if !ok {
			return RawEvent{}, false
		}
		props := c.props[sig.Path]
		if props == nil {
			props = make(map[string]dbus.Variant, len(changed))
			c.props[sig.Path] = props
		}
		for k, v := range changed {
			props[k] = v
		}
		if len(sig.Body) >= 3 {
			if invalidated, ok := sig.Body[2].([]string); ok {
				for _, k := range invalidated {
					delete(props, k)
				}
			}
		}
		if !advertisementChange(changed) {
			return RawEvent{}, false
		}
		return eventFromProps(c.adapterID, props)
	}
	return RawEvent{}, false
}

func advertisementChange(changed map[string]dbus.Variant) bool {
	for _, k := range advertisementProps {
		if _, ok := changed[k]; ok {
			return true
		}
	}
	return false
}

func copyProps(in map[string]dbus.Variant) map[string]dbus.Variant {
	out := make(map[string]dbus.Variant, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// eventFromProps converts merged Device1 properties into a RawEvent.
func eventFromProps(adapterID string, props map[string]dbus.Variant) (RawEvent, bool) {
	addr, _ := getString(props, "Address")
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return RawEvent{}, false
	}

	ev := RawEvent{
		Address:          addr,
		RSSI:             getInt16AsIntPtr(props, "RSSI"),
		TxPower:          getInt16AsIntPtr(props, "TxPower"),
		ServiceUUIDs:     getUUIDsList(props),
		ManufacturerData: parseManufacturerEntries(props),
		ServiceData:      parseServiceDataEntries(props),
	}
	if name, ok := getString(props, "Name"); ok && strings.TrimSpace(name) != "" {
		ev.LocalName = &name
	}

	addrType, _ := getString(props, "AddressType")
	class := ClassifyAddress(addr, addrType == "random")
	platform := make(map[string]any, len(props)+3)
	for k, v := range props {
		platform[k] = sanitizeDBusValue(v.Value())
	}
	platform["source"] = bluezService
	platform["adapter"] = adapterID
	platform["address_class"] = class
	ev.Platform = platform
	return ev, true
}

func getString(props map[string]dbus.Variant, key string) (string, bool) {
	v, ok := props[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value().(string)
	if !ok {
		return "", false
	}
	return s, true
}

func getInt16AsIntPtr(props map[string]dbus.Variant, key string) *int {
	v, ok := props[key]
	if !ok {
		return nil
	}
	switch x := v.Value().(type) {
	case int16:
		vv := int(x)
		return &vv
	case int32:
		vv := int(x)
		return &vv
	case int:
		vv := x
		return &vv
	default:
		return nil
	}
}

func getUUIDsList(props map[string]dbus.Variant) []string {
	v, ok := props["UUIDs"]
	if !ok {
		return nil
	}
	u, ok := v.Value().([]string)
	if !ok {
		return nil
	}
	return slices.Clone(u)
}

// parseManufacturerEntries returns entries ordered by company id; BlueZ
// delivers a dictionary, so the advertised order is not available.
func parseManufacturerEntries(props map[string]dbus.Variant) []ManufacturerEntry {
	v, ok := props["ManufacturerData"]
	if !ok {
		return nil
	}
	var out []ManufacturerEntry
	switch mm := v.Value().(type) {
	case map[uint16][]byte:
		for k, b := range mm {
			out = append(out, ManufacturerEntry{CompanyID: int(k), Data: slices.Clone(b)})
		}
	case map[uint16]dbus.Variant:
		for k, vv := range mm {
			if b, ok := vv.Value().([]byte); ok {
				out = append(out, ManufacturerEntry{CompanyID: int(k), Data: slices.Clone(b)})
			}
		}
	}
	slices.SortFunc(out, func(a, b ManufacturerEntry) int { return a.CompanyID - b.CompanyID })
	return out
}

func parseServiceDataEntries(props map[string]dbus.Variant) []ServiceDataEntry {
	v, ok := props["ServiceData"]
	if !ok {
		return nil
	}
	var out []ServiceDataEntry
	switch mm := v.Value().(type) {
	case map[string][]byte:
		for k, b := range mm {
			if k = strings.TrimSpace(k); k != "" {
				out = append(out, ServiceDataEntry{UUID: k, Data: slices.Clone(b)})
			}
		}
	case map[string]dbus.Variant:
		for k, vv := range mm {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			if b, ok := vv.Value().([]byte); ok {
				out = append(out, ServiceDataEntry{UUID: k, Data: slices.Clone(b)})
			}
		}
	}
	slices.SortFunc(out, func(a, b ServiceDataEntry) int { return strings.Compare(a.UUID, b.UUID) })
	return out
}

// sanitizeDBusValue converts D-Bus values into JSON-friendly ones.
func sanitizeDBusValue(v any) any {
	if v == nil {
		return nil
	}

	switch x := v.(type) {
	case dbus.ObjectPath:
		return string(x)
	case dbus.Variant:
		return sanitizeDBusValue(x.Value())
	case []byte:
		return hexdump.Spaced(x)
	case []string:
		return x
	case map[string]dbus.Variant:
		m := make(map[string]any, len(x))
		for k, vv := range x {
			m[k] = sanitizeDBusValue(vv.Value())
		}
		return m
	case map[uint16]dbus.Variant:
		m := make(map[string]any, len(x))
		for k, vv := range x {
			m[fmt.Sprintf("0x%04X", k)] = sanitizeDBusValue(vv.Value())
		}
		return m
	case map[uint16][]byte:
		m := make(map[string]any, len(x))
		for k, vv := range x {
			m[fmt.Sprintf("0x%04X", k)] = hexdump.Spaced(vv)
		}
		return m
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, sanitizeDBusValue(rv.Index(i).Interface()))
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		it := rv.MapRange()
		for it.Next() {
			out[fmt.Sprint(it.Key().Interface())] = sanitizeDBusValue(it.Value().Interface())
		}
		return out
	default:
		return v
	}
}
