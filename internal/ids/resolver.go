package ids

// Resolver provides name lookups for identifiers seen in advertisements.
//
// - Company names come from the pinned SIG registry (see DefaultRegistry).
// - Vendor names are resolved by MAC OUI (from oui.csv, when provided).
// - Service UUID names are resolved from service_uuids.yaml.
//
// Service UUID keys are stored in canonical 128-bit, lower-case form.
// A Resolver is read-only after Load returns.
type Resolver struct {
	companies *Registry
	vendors   map[string]string

	serviceUUIDNames map[string]string
}

// Companies returns the company registry backing this resolver.
func (r *Resolver) Companies() *Registry {
	if r == nil || r.companies == nil {
		return DefaultRegistry()
	}
	return r.companies
}

// ManufacturerName resolves a company identifier with the 0x%04X fallback.
func (r *Resolver) ManufacturerName(id uint16) string {
	return r.Companies().ManufacturerName(id)
}

func (r *Resolver) VendorForMAC(mac string) string {
	if r == nil || len(r.vendors) == 0 {
		return ""
	}
	oui := macToOUI(mac)
	if oui == "" {
		return ""
	}
	return r.vendors[oui]
}

// ServiceName accepts any UUID form (short "180F" or 128-bit) and returns
// the SIG service name, or "".
func (r *Resolver) ServiceName(u string) string {
	if r == nil || len(r.serviceUUIDNames) == 0 {
		return ""
	}
	key, err := ExpandUUID(u)
	if err != nil {
		return ""
	}
	return r.serviceUUIDNames[key]
}

// AnnotateServiceUUID appends the service name in parentheses when known.
func (r *Resolver) AnnotateServiceUUID(u string) string {
	name := r.ServiceName(u)
	if name == "" {
		return u
	}
	return u + " (" + name + ")"
}
