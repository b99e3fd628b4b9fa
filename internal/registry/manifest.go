package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Manifest describes a module as declared by its addon directory.
type Manifest struct {
	Name        string   `yaml:"name"`
	DisplayName string   `yaml:"display_name"`
	Description string   `yaml:"description"`
	Category    string   `yaml:"category"`
	Depends     []string `yaml:"depends"`
	Version     string   `yaml:"version"`
}

// LoadManifest parses <dir>/<name>/manifest.yaml. The manifest name must
// match the directory it lives in; a mismatch means a copy-paste error in
// the addon tree and is rejected.
func LoadManifest(dir, name string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name, "manifest.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: module %q has no manifest", ErrNotFound, name)
		}
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest for %q: %v", ErrInvalidInput, name, err)
	}
	if m.Name == "" {
		m.Name = name
	}
	if m.Name != name {
		return nil, fmt.Errorf("%w: manifest name %q does not match directory %q", ErrInvalidInput, m.Name, name)
	}
	if m.DisplayName == "" {
		m.DisplayName = m.Name
	}
	if m.Category == "" {
		m.Category = CategoryAddon
	}
	return &m, nil
}

// AvailableModules scans the addons directory and returns every manifest it
// can parse, sorted by name. Directories without a manifest are skipped.
func AvailableModules(dir string) ([]Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []Manifest
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m, err := LoadManifest(dir, entry.Name())
		if err != nil {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
