package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/JonMunkholm/material-finder/internal/core"
	"github.com/pelletier/go-toml/v2"
)

//go:embed default_filters.toml
var defaultFilters []byte

// Filter is one categorical filter entry of a filters file.
type Filter struct {
	Label   string `toml:"label"`
	Field   string `toml:"field"`
	Enabled bool   `toml:"enabled"`
}

type filterFile struct {
	Filters []Filter `toml:"filter"`
}

// LoadFilters reads the filter list from path, or the built-in list when
// path is empty.
func LoadFilters(path string) ([]Filter, error) {
	data := defaultFilters
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read filters file %s: %w", path, err)
		}
		data = b
	}

	filters, err := ParseFilters(data)
	if err != nil {
		if path == "" {
			path = "built-in filters"
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return filters, nil
}

// ParseFilters decodes a TOML filter list and validates every entry.
func ParseFilters(data []byte) ([]Filter, error) {
	var file filterFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode filters: %w", err)
	}

	var errs []string
	seen := make(map[string]bool, len(file.Filters))
	for i, f := range file.Filters {
		label := strings.TrimSpace(f.Label)
		switch {
		case label == "":
			errs = append(errs, fmt.Sprintf("filter %d: label is required", i+1))
		case seen[label]:
			errs = append(errs, fmt.Sprintf("filter %d: duplicate label %q", i+1, label))
		}
		seen[label] = true
		if strings.TrimSpace(f.Field) == "" {
			errs = append(errs, fmt.Sprintf("filter %d: field is required", i+1))
		}
		file.Filters[i].Label = label
		file.Filters[i].Field = strings.TrimSpace(f.Field)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid filters:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return file.Filters, nil
}

// FilterFields converts filters to the engine's field list, keeping order.
func FilterFields(filters []Filter) []core.FilterField {
	fields := make([]core.FilterField, len(filters))
	for i, f := range filters {
		fields[i] = core.FilterField{
			Label:   f.Label,
			Field:   core.FieldKey(f.Field),
			Enabled: f.Enabled,
		}
	}
	return fields
}
