package ambient

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// LocationConfig is the anchor configuration for one location
type LocationConfig struct {
	Enabled *bool        `yaml:"enabled"`
	Anchors []AnchorSpec `yaml:"anchors"`
}

// IsEnabled defaults to true when the flag is omitted
func (l LocationConfig) IsEnabled() bool {
	return l.Enabled == nil || *l.Enabled
}

// AnchorsFile is the YAML document listing anchors per location
type AnchorsFile struct {
	Locations map[string]LocationConfig `yaml:"locations"`
}

// LoadAnchorsFile reads and validates an anchors file
func LoadAnchorsFile(path string) (*AnchorsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read anchors file: %w", err)
	}
	return ParseAnchorsFile(data)
}

// ParseAnchorsFile parses and validates anchors file content
func ParseAnchorsFile(data []byte) (*AnchorsFile, error) {
	var file AnchorsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse anchors YAML: %w", err)
	}

	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("anchors file validation failed: %w", err)
	}

	return &file, nil
}

// Validate checks every anchor of every location
func (f *AnchorsFile) Validate() error {
	if len(f.Locations) == 0 {
		return fmt.Errorf("no locations defined")
	}

	for _, name := range f.LocationNames() {
		if name == "" {
			return fmt.Errorf("location name must not be empty")
		}
		for i, spec := range f.Locations[name].Anchors {
			if _, err := ParseTimeSpec(spec.Time); err != nil {
				return fmt.Errorf("location %s anchor %d: %w", name, i, err)
			}
			if _, err := ParseColor(spec.Color); err != nil {
				return fmt.Errorf("location %s anchor %d: %w", name, i, err)
			}
		}
	}

	return nil
}

// LocationNames returns the configured locations in sorted order
func (f *AnchorsFile) LocationNames() []string {
	names := make([]string, 0, len(f.Locations))
	for name := range f.Locations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
