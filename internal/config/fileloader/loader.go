// Package fileloader reads named settings profiles from YAML files.
package fileloader

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
)

// Profiles maps a profile name to the settings it applies over the defaults.
type Profiles map[string]domain.Payload

// profileFile is the on-disk layout:
//
//	profiles:
//	  quick:
//	    port_range: top-100
type profileFile struct {
	Profiles map[string]map[string]any `yaml:"profiles"`
}

// FileLoader loads settings profiles from a file on disk.
type FileLoader struct {
	// path is the filesystem path to the profiles file.
	path string
}

// NewFileLoader creates a new FileLoader that will load profiles from the
// specified file path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Load reads and parses the profiles file. Every key of every profile must be
// a known setting.
func (l *FileLoader) Load(ctx context.Context) (Profiles, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}

	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}

	known := domain.DefaultSettings()
	out := make(Profiles, len(f.Profiles))
	for name, settings := range f.Profiles {
		for key := range settings {
			if _, ok := known[key]; !ok {
				return nil, fmt.Errorf("profile %q: unknown setting %q", name, key)
			}
		}
		out[name] = domain.Payload(settings)
	}

	return out, nil
}
