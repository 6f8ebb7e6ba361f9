package ids

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// UnknownManufacturer is returned by Registry.Lookup on a miss.
const UnknownManufacturer = "Unknown"

//go:embed data/company_identifiers.yaml
var companyIdentifiersYAML []byte

// Registry maps Bluetooth SIG company identifiers to company names.
//
// A Registry is immutable once built and safe for concurrent use.
type Registry struct {
	version string
	names   map[uint16]string
}

type companyFile struct {
	Version   string         `yaml:"version"`
	Companies []companyEntry `yaml:"company_identifiers"`
}

type companyEntry struct {
	Value any    `yaml:"value"`
	Name  string `yaml:"name"`
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry compiled into the binary.
// It is parsed on first use and never modified afterwards.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		r, err := ParseRegistry(bytes.NewReader(companyIdentifiersYAML))
		if err != nil {
			// The embedded file is part of the build; a parse failure is a build defect.
			panic(fmt.Sprintf("ids: embedded company identifiers: %v", err))
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// ParseRegistry reads a SIG company_identifiers.yaml document.
func ParseRegistry(r io.Reader) (*Registry, error) {
	var f companyFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode company identifiers: %w", err)
	}

	reg := &Registry{
		version: strings.TrimSpace(f.Version),
		names:   make(map[uint16]string, len(f.Companies)),
	}
	for _, c := range f.Companies {
		id, err := companyID(c.Value)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		reg.names[id] = name
	}
	return reg, nil
}

func companyID(v any) (uint16, error) {
	switch t := v.(type) {
	case int:
		if t < 0 || t > 0xFFFF {
			return 0, fmt.Errorf("company id %d out of range", t)
		}
		return uint16(t), nil
	case string:
		s := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(t)), "0x")
		n, err := strconv.ParseUint(s, 16, 16)
		if err != nil {
			return 0, fmt.Errorf("company id %q: %w", t, err)
		}
		return uint16(n), nil
	default:
		return 0, fmt.Errorf("company id has unsupported type %T", v)
	}
}

// Version reports the assigned-numbers snapshot the registry was built from.
func (r *Registry) Version() string {
	if r == nil {
		return ""
	}
	return r.version
}

// Len returns the number of known company identifiers.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}

// Lookup returns the company name for id, or UnknownManufacturer.
func (r *Registry) Lookup(id uint16) string {
	if r == nil {
		return UnknownManufacturer
	}
	if name, ok := r.names[id]; ok {
		return name
	}
	return UnknownManufacturer
}

// ManufacturerName resolves id for display, falling back to the raw
// identifier (0x004C style) when the registry has no entry.
func (r *Registry) ManufacturerName(id uint16) string {
	name := r.Lookup(id)
	if name == UnknownManufacturer {
		return FormatCompanyID(id)
	}
	return name
}

// FormatCompanyID renders a company identifier as 0x followed by four upper-case hex digits.
func FormatCompanyID(id uint16) string {
	return fmt.Sprintf("0x%04X", id)
}
