package core

import (
	"context"
	"sort"
	"strings"
)

// maxAutoOptions bounds how many distinct values an auto-detected field may
// have before it is considered free text rather than a category.
const maxAutoOptions = 50

// Options returns the selectable values for every enabled filter field.
func (e *Engine) Options(ctx context.Context) (map[FieldKey][]string, error) {
	res, err := e.records.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return CollectOptions(res.Records, e.fields), nil
}

// CollectOptions gathers the sorted distinct atomic values of each enabled
// field. Original casing is kept. Fields missing from every record map to an
// empty slice.
//
// With no fields configured, every column of the first record is considered
// and kept if it has fewer than 50 distinct values.
func CollectOptions(records []Record, fields []FilterField) map[FieldKey][]string {
	options := make(map[FieldKey][]string)

	if len(fields) == 0 {
		if len(records) == 0 {
			return options
		}
		for key := range records[0] {
			values := uniqueValues(records, key)
			if len(values) > 0 && len(values) < maxAutoOptions {
				options[key] = values
			}
		}
		return options
	}

	for _, f := range EnabledFields(fields) {
		options[f.Field] = uniqueValues(records, f.Field)
	}
	return options
}

func uniqueValues(records []Record, key FieldKey) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		cell := strings.TrimSpace(rec.Get(key))
		if cell == "" {
			continue
		}
		for _, v := range SplitValues(cell) {
			if v != "" {
				seen[v] = struct{}{}
			}
		}
	}

	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}
