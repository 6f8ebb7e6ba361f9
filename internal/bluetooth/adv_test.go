package bluetooth

import "testing"

func TestParseADStructures(t *testing.T) {
	adv := []byte{
		0x02, 0x01, 0x06, // flags
		0x05, 0x09, 'T', 'a', 'g', '1', // complete local name
		0x02, 0x0A, 0x04, // tx power +4
		0x04, 0xFF, 0x4C, 0x00, 0x02, // manufacturer data
	}
	items := ParseADStructures(adv)
	if len(items) != 4 {
		t.Fatalf("ParseADStructures() returned %d items, want 4", len(items))
	}

	tests := []struct {
		idx     int
		typeHex string
		name    string
		dataHex string
		text    string
	}{
		{0, "0x01", "Flags", "06", ""},
		{1, "0x09", "Complete Local Name", "54616731", "Tag1"},
		{2, "0x0A", "Tx Power Level", "04", "+4"},
		{3, "0xFF", "Manufacturer Specific Data", "4C0002", ""},
	}
	for _, tt := range tests {
		it := items[tt.idx]
		if it.TypeHex != tt.typeHex || it.Name != tt.name || it.DataHex != tt.dataHex || it.Text != tt.text {
			t.Errorf("item %d = %+v", tt.idx, it)
		}
	}
}

func TestParseADStructures_Truncated(t *testing.T) {
	tests := []struct {
		name string
		adv  []byte
		want int
	}{
		{name: "empty", adv: nil, want: 0},
		{name: "zero length terminator", adv: []byte{0x02, 0x01, 0x06, 0x00, 0x09}, want: 1},
		{name: "truncated tail", adv: []byte{0x02, 0x01, 0x06, 0x05, 0x09, 'a'}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(ParseADStructures(tt.adv)); got != tt.want {
				t.Errorf("got %d items, want %d", got, tt.want)
			}
		})
	}
}

func TestTxPowerFromAdv(t *testing.T) {
	if got := TxPowerFromAdv([]byte{0x02, 0x0A, 0xF4}); got == nil || *got != -12 {
		t.Errorf("TxPowerFromAdv() = %v, want -12", got)
	}
	if got := TxPowerFromAdv([]byte{0x02, 0x01, 0x06}); got != nil {
		t.Errorf("TxPowerFromAdv() = %d, want nil", *got)
	}
}

func TestClassifyAddress(t *testing.T) {
	tests := []struct {
		addr    string
		random  bool
		typ     string
		subtype string
	}{
		{"00:11:22:33:44:55", false, "public_or_unknown", ""},
		{"3A:11:22:33:44:55", true, "random", "non_resolvable_private"},
		{"7A:11:22:33:44:55", true, "random", "resolvable_private"},
		{"BA:11:22:33:44:55", true, "random", "reserved"},
		{"FA:11:22:33:44:55", true, "random", "static_random"},
		{"5C2B7C4E-91A0-4E1B-9D4E-0A1B2C3D4E5F", true, "opaque", ""},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			got := ClassifyAddress(tt.addr, tt.random)
			if got.Type != tt.typ || got.Subtype != tt.subtype {
				t.Errorf("ClassifyAddress() = %+v, want %s/%s", got, tt.typ, tt.subtype)
			}
		})
	}
}
