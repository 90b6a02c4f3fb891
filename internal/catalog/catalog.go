// Package catalog loads the read-only course reference data.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/abtest/internal/domain"
)

//go:embed default.yaml
var defaultCatalog []byte

type file struct {
	Courses []domain.Course `yaml:"courses"`
}

// Default returns the catalog compiled into the binary.
func Default() []domain.Course {
	courses, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return courses
}

// Load reads a catalog file, or returns Default when path is empty.
func Load(path string) ([]domain.Course, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(raw)
}

// Parse decodes YAML and rejects blank or repeated course ids.
func Parse(raw []byte) ([]domain.Course, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Courses))
	for i, c := range f.Courses {
		if strings.TrimSpace(c.ID) == "" {
			return nil, fmt.Errorf("catalog: courses[%d]: id required", i)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate course id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return f.Courses, nil
}
