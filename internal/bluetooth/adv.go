package bluetooth

import (
	"fmt"
	"strconv"

	"blescan/internal/hexdump"
)

// AD types referenced by the decoder.
const (
	adTypeShortName = 0x08
	adTypeFullName  = 0x09
	adTypeTxPower   = 0x0A
)

// ADStructure is one length-type-value element of an advertising PDU.
type ADStructure struct {
	Type byte   `json:"-"`
	Name string `json:"name,omitempty"`
	Data []byte `json:"-"`

	TypeHex string `json:"type"`
	DataHex string `json:"data_hex"`
	Text    string `json:"text,omitempty"`
}

// ParseADStructures splits adv into AD structures. Parsing stops at a
// zero-length element or at a truncated trailing element.
func ParseADStructures(adv []byte) []ADStructure {
	var items []ADStructure
	for i := 0; i < len(adv); {
		l := int(adv[i])
		if l == 0 || i+1+l > len(adv) {
			break
		}
		typ := adv[i+1]
		data := adv[i+2 : i+1+l]

		item := ADStructure{
			Type:    typ,
			Name:    adTypeName(typ),
			Data:    data,
			TypeHex: fmt.Sprintf("0x%02X", typ),
			DataHex: hexdump.Hex(data),
		}
		switch {
		case typ == adTypeShortName || typ == adTypeFullName:
			item.Text = safeASCII(data)
		case typ == adTypeTxPower && len(data) >= 1:
			item.Text = formatTxPower(int(int8(data[0])))
		}

		items = append(items, item)
		i += 1 + l
	}
	return items
}

// TxPowerFromAdv returns the Tx Power Level element of adv, if present.
func TxPowerFromAdv(adv []byte) *int {
	for _, it := range ParseADStructures(adv) {
		if it.Type == adTypeTxPower && len(it.Data) >= 1 {
			v := int(int8(it.Data[0]))
			return &v
		}
	}
	return nil
}

func adTypeName(t byte) string {
	switch t {
	case 0x01:
		return "Flags"
	case 0x02:
		return "Incomplete List of 16-bit Service Class UUIDs"
	case 0x03:
		return "Complete List of 16-bit Service Class UUIDs"
	case 0x04:
		return "Incomplete List of 32-bit Service Class UUIDs"
	case 0x05:
		return "Complete List of 32-bit Service Class UUIDs"
	case 0x06:
		return "Incomplete List of 128-bit Service Class UUIDs"
	case 0x07:
		return "Complete List of 128-bit Service Class UUIDs"
	case adTypeShortName:
		return "Shortened Local Name"
	case adTypeFullName:
		return "Complete Local Name"
	case adTypeTxPower:
		return "Tx Power Level"
	case 0x16:
		return "Service Data - 16-bit UUID"
	case 0x19:
		return "Appearance"
	case 0x20:
		return "Service Data - 32-bit UUID"
	case 0x21:
		return "Service Data - 128-bit UUID"
	case 0xFF:
		return "Manufacturer Specific Data"
	default:
		return ""
	}
}

func safeASCII(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return ""
		}
	}
	return string(b)
}

// formatTxPower renders dBm with an explicit sign ("+4", "-12").
func formatTxPower(v int) string {
	if v >= 0 {
		return "+" + strconv.Itoa(v)
	}
	return strconv.Itoa(v)
}
