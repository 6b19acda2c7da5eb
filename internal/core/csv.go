package core

import "strings"

// RawTable is the cell grid produced by ParseCSV. The first row is the header.
type RawTable [][]string

// ParseCSV splits delimited text into rows of trimmed cells.
//
// The parser is line oriented and permissive: blank lines are dropped, a
// doubled quote inside a quoted field yields a literal quote, commas inside
// quotes are content, and unbalanced quotes never produce an error. Quoted
// fields cannot span lines.
func ParseCSV(text string) RawTable {
	if text == "" {
		return RawTable{}
	}

	lines := strings.Split(text, "\n")
	table := make(RawTable, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		table = append(table, parseLine(line))
	}

	return table
}

// parseLine scans a single non-blank line.
func parseLine(line string) []string {
	var (
		row      []string
		cell     strings.Builder
		inQuotes bool
	)

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"' && !inQuotes:
			inQuotes = true
		case c == '"' && i+1 < len(line) && line[i+1] == '"':
			cell.WriteByte('"')
			i++
		case c == '"':
			inQuotes = false
		case c == ',' && !inQuotes:
			row = append(row, strings.TrimSpace(cell.String()))
			cell.Reset()
		default:
			cell.WriteByte(c)
		}
	}

	return append(row, strings.TrimSpace(cell.String()))
}
