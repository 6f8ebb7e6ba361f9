package bluetooth

import (
	"context"
	"slices"
	"strings"

	"github.com/godbus/dbus/v5"
)

// AdapterInfo describes one BlueZ controller.
type AdapterInfo struct {
	ID          string
	Address     string
	Name        string
	Powered     bool
	Discovering bool
	BusInfo     string
}

func bluezAdapterExists(ctx context.Context, conn *dbus.Conn, adapterID string) bool {
	managed, err := getManagedObjects(ctx, conn)
	if err != nil {
		return false
	}
	ifaces, ok := managed[dbus.ObjectPath("/org/bluez/"+strings.TrimSpace(adapterID))]
	if !ok {
		return false
	}
	_, ok = ifaces[bluezAdapterIface]
	return ok
}

// ListAdapters reports the controllers BlueZ exposes, ordered by ID. Bus
// information comes from hciconfig when it is installed.
func ListAdapters(ctx context.Context) ([]AdapterInfo, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, NewStartupError("connect to system bus", err)
	}
	defer conn.Close()

	managed, err := getManagedObjects(ctx, conn)
	if err != nil {
		return nil, NewStartupError("list bluez objects", err)
	}
	out := adaptersFromManaged(managed)

	if ifaces, err := GetBluetoothInterfaces(ctx); err == nil {
		bus := make(map[string]string, len(ifaces))
		for _, i := range ifaces {
			bus[i.ID] = i.BusInfo
		}
		for i := range out {
			out[i].BusInfo = bus[out[i].ID]
		}
	}
	return out, nil
}

func adaptersFromManaged(managed map[dbus.ObjectPath]map[string]map[string]dbus.Variant) []AdapterInfo {
	var out []AdapterInfo
	for path, ifaces := range managed {
		props, ok := ifaces[bluezAdapterIface]
		if !ok {
			continue
		}
		p := string(path)
		if !strings.HasPrefix(p, "/org/bluez/") {
			continue
		}
		info := AdapterInfo{ID: strings.TrimPrefix(p, "/org/bluez/")}
		if s, ok := getString(props, "Address"); ok {
			info.Address = strings.ToUpper(strings.TrimSpace(s))
		}
		if s, ok := getString(props, "Alias"); ok {
			info.Name = s
		} else if s, ok := getString(props, "Name"); ok {
			info.Name = s
		}
		info.Powered = getBool(props, "Powered")
		info.Discovering = getBool(props, "Discovering")
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b AdapterInfo) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func getBool(props map[string]dbus.Variant, key string) bool {
	v, ok := props[key]
	if !ok {
		return false
	}
	b, _ := v.Value().(bool)
	return b
}
