package core

import "strings"

// valueSeparators are applied in order; each pass re-splits the fragments
// produced by the previous one.
var valueSeparators = []string{",", ";", " y ", " Y ", " - ", "|"}

// SplitValues decomposes a multi-valued cell such as "Álgebra, Geometría y
// Trigonometría" into its atomic values. An empty value is returned as a
// single-element slice holding the value unchanged.
//
// " - " only splits when surrounded by spaces, so hyphenated words such as
// "Físico-Química" stay intact.
func SplitValues(value string) []string {
	if value == "" {
		return []string{value}
	}

	values := []string{value}
	for _, sep := range valueSeparators {
		next := make([]string, 0, len(values))
		for _, v := range values {
			if !strings.Contains(v, sep) {
				next = append(next, v)
				continue
			}
			for _, part := range strings.Split(v, sep) {
				if part = strings.TrimSpace(part); part != "" {
					next = append(next, part)
				}
			}
		}
		values = next
	}

	result := values[:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			result = append(result, v)
		}
	}
	return result
}
