package bluetooth

import (
	"strconv"
	"strings"
)

// AddressClass describes how a device address was assigned.
type AddressClass struct {
	Type    string `json:"address_type"`
	Subtype string `json:"address_subtype,omitempty"`
}

// ClassifyAddress returns the address type and, for random addresses, the
// subtype encoded in the two most significant bits of the first octet:
//   - 00: non_resolvable_private
//   - 01: resolvable_private
//   - 10: reserved
//   - 11: static_random
//
// Addresses that are not MAC shaped (CoreBluetooth identifiers) are "opaque".
func ClassifyAddress(addr string, random bool) AddressClass {
	parts := strings.FieldsFunc(addr, func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) != 6 {
		return AddressClass{Type: "opaque"}
	}
	if !random {
		return AddressClass{Type: "public_or_unknown"}
	}
	msb, err := strconv.ParseUint(parts[0], 16, 8)
	if err != nil {
		return AddressClass{Type: "random"}
	}
	switch (msb >> 6) & 0x03 {
	case 0:
		return AddressClass{Type: "random", Subtype: "non_resolvable_private"}
	case 1:
		return AddressClass{Type: "random", Subtype: "resolvable_private"}
	case 2:
		return AddressClass{Type: "random", Subtype: "reserved"}
	default:
		return AddressClass{Type: "random", Subtype: "static_random"}
	}
}
