package bluetooth

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strings"
)

type InterfaceInfo struct {
	ID      string
	BusInfo string
}

var (
	ifaceLineRe = regexp.MustCompile(`^(hci\d+):.*`)
	busRe       = regexp.MustCompile(`Bus:\s*(USB|UART|PCI|SDIO|Virtual)`) // best-effort
)

// GetBluetoothInterfaces lists hciN interfaces via hciconfig.
func GetBluetoothInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	out, err := exec.CommandContext(ctx, "hciconfig").CombinedOutput()
	if err != nil {
		return nil, err
	}
	return parseHCIConfig(out), nil
}

func parseHCIConfig(out []byte) []InterfaceInfo {
	var list []InterfaceInfo
	var cur, bus string

	flush := func() {
		if cur == "" {
			return
		}
		if bus == "" {
			bus = "Unknown"
		}
		list = append(list, InterfaceInfo{ID: cur, BusInfo: bus})
		cur, bus = "", ""
	}

	for _, raw := range bytes.Split(out, []byte{'\n'}) {
		line := strings.TrimSpace(string(bytes.TrimRight(raw, "\r")))
		if line == "" {
			flush()
			continue
		}
		if m := ifaceLineRe.FindStringSubmatch(line); m != nil {
			flush()
			cur = m[1]
			if bm := busRe.FindStringSubmatch(line); bm != nil {
				bus = bm[1]
			}
			continue
		}
		if cur != "" && bus == "" {
			if bm := busRe.FindStringSubmatch(line); bm != nil {
				bus = bm[1]
			}
		}
	}
	flush()
	return list
}
