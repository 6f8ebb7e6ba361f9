package ids

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

//go:embed data/service_uuids.yaml
var serviceUUIDsYAML []byte

var ErrBadUUID = errors.New("bad uuid")

type LoadConfig struct {
	// DataDir is the root directory that contains default/ and custom/ subfolders.
	// Example:
	//   data/default/oui.csv
	//   data/custom/service_uuids.yaml
	// It may be empty or missing; embedded defaults are always loaded.
	DataDir string

	// CustomDir optionally overrides the custom directory path. When empty, it is
	// assumed to be <DataDir>/custom.
	CustomDir string
}

// Load builds a Resolver from the embedded SIG tables, then overlays
// <DataDir>/default and the custom directory. Missing files are skipped;
// malformed files are reported.
func Load(cfg LoadConfig) (*Resolver, error) {
	res := &Resolver{
		companies:        DefaultRegistry(),
		vendors:          map[string]string{},
		serviceUUIDNames: map[string]string{},
	}

	embedded, err := LoadUUIDYaml(bytes.NewReader(serviceUUIDsYAML))
	if err != nil {
		return nil, fmt.Errorf("embedded service uuids: %w", err)
	}
	for k, v := range embedded {
		res.serviceUUIDNames[k] = v
	}

	if cfg.DataDir == "" && cfg.CustomDir == "" {
		return res, nil
	}

	customDir := cfg.CustomDir
	if customDir == "" {
		customDir = filepath.Join(cfg.DataDir, "custom")
	} else if _, err := os.Stat(customDir); err != nil {
		return nil, fmt.Errorf("custom-data-dir not accessible: %w", err)
	}

	var dirs []string
	if cfg.DataDir != "" {
		dirs = append(dirs, filepath.Join(cfg.DataDir, "default"))
	}
	dirs = append(dirs, customDir)

	for _, dir := range dirs {
		if err := overlayFile(filepath.Join(dir, "oui.csv"), res.vendors, LoadOUI); err != nil {
			return nil, err
		}
		if err := overlayFile(filepath.Join(dir, "service_uuids.yaml"), res.serviceUUIDNames, LoadUUIDYaml); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func overlayFile(path string, dst map[string]string, parse func(io.Reader) (map[string]string, error)) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	items, err := parse(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for k, v := range items {
		if k == "" || v == "" {
			continue
		}
		dst[k] = v
	}
	return nil
}
