package core

import "strings"

// FieldKey is a canonical column identifier. Headers that differ only in case,
// accents, spacing, underscores or hyphens share the same key.
type FieldKey string

// FilterField maps a user-facing filter label to the record field it reads.
type FilterField struct {
	Label   string   `json:"label"`
	Field   FieldKey `json:"field"`
	Enabled bool     `json:"enabled"`
}

var accentFolder = strings.NewReplacer(
	"á", "a", "à", "a", "ä", "a", "â", "a",
	"é", "e", "è", "e", "ë", "e", "ê", "e",
	"í", "i", "ì", "i", "ï", "i", "î", "i",
	"ó", "o", "ò", "o", "ö", "o", "ô", "o",
	"ú", "u", "ù", "u", "ü", "u", "û", "u",
	"ñ", "n",
)

// NormalizeField converts a header or filter label to its FieldKey.
func NormalizeField(label string) FieldKey {
	s := strings.TrimSpace(strings.ToLower(label))
	s = accentFolder.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return FieldKey(b.String())
}

// FieldForLabel resolves the record field a filter label refers to. Labels
// without a configured entry fall back to their normalized form.
func FieldForLabel(label string, fields []FilterField) FieldKey {
	for _, f := range fields {
		if f.Label == label {
			return f.Field
		}
	}
	return NormalizeField(label)
}

// EnabledFields returns the enabled entries in configuration order.
func EnabledFields(fields []FilterField) []FilterField {
	enabled := make([]FilterField, 0, len(fields))
	for _, f := range fields {
		if f.Enabled {
			enabled = append(enabled, f)
		}
	}
	return enabled
}
