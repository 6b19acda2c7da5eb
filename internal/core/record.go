package core

import "strings"

// Record is one material keyed by normalized column name.
type Record map[FieldKey]string

// Get returns the value stored under key, or "" if absent.
func (r Record) Get(key FieldKey) string {
	return r[key]
}

// BuildRecords zips the header row with every data row. Rows whose cells are
// all blank are skipped, as are columns with an empty header. Short rows
// yield empty values for the missing columns.
func BuildRecords(table RawTable) []Record {
	if len(table) == 0 {
		return []Record{}
	}

	headers := make([]FieldKey, len(table[0]))
	for i, h := range table[0] {
		if h == "" {
			continue
		}
		headers[i] = NormalizeField(h)
	}

	records := make([]Record, 0, len(table)-1)
	for _, row := range table[1:] {
		if isBlankRow(row) {
			continue
		}

		rec := make(Record, len(headers))
		for i, h := range table[0] {
			if h == "" {
				continue
			}
			var value string
			if i < len(row) {
				value = strings.TrimSpace(row[i])
			}
			rec[headers[i]] = value
		}
		records = append(records, rec)
	}

	return records
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
