package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	pstrings "downloadgate/pkg/platform/strings"
)

// Manifest is the server-owned list of downloadable files. It is the only
// source of storage keys.
type Manifest struct {
	Files []ManifestFile `yaml:"files"`
}

// ManifestFile describes one file. Display fields left empty are derived
// from the storage key.
type ManifestFile struct {
	ID       string   `yaml:"id"`
	Key      string   `yaml:"key"`
	Name     string   `yaml:"name,omitempty"`
	Version  string   `yaml:"version,omitempty"`
	Products []string `yaml:"products,omitempty"`
	Type     string   `yaml:"type,omitempty"`
	OS       string   `yaml:"os,omitempty"`
	Icon     string   `yaml:"icon,omitempty"`
	Checksum string   `yaml:"checksum,omitempty"`
}

// LoadManifest reads a YAML manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog manifest: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseManifest(f)
}

// ParseManifest decodes and validates a manifest. Unknown fields are
// rejected.
func ParseManifest(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode catalog manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks ids are unique and every file names a storage key.
func (m *Manifest) Validate() error {
	var errs []error
	seen := make(map[string]struct{}, len(m.Files))
	for i := range m.Files {
		f := &m.Files[i]
		f.ID = strings.TrimSpace(f.ID)
		f.Key = strings.TrimSpace(f.Key)
		f.Products = pstrings.DedupeAndTrim(f.Products)
		if f.ID == "" {
			errs = append(errs, fmt.Errorf("files[%d]: id is required", i))
			continue
		}
		if f.Key == "" {
			errs = append(errs, fmt.Errorf("file %q: key is required", f.ID))
		}
		if _, dup := seen[f.ID]; dup {
			errs = append(errs, fmt.Errorf("file %q: duplicate id", f.ID))
		}
		seen[f.ID] = struct{}{}
	}
	return errors.Join(errs...)
}
