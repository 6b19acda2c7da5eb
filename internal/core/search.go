package core

import (
	"context"
	"strings"
)

// MaxFilterLength is the number of characters kept from each query value.
const MaxFilterLength = 100

// KeywordFields are the record fields searched by free-text keywords.
var KeywordFields = []FieldKey{"titulo", "descripcion", "palabrasclave", "palabrasclaves"}

// Query is a search request: free-text keywords plus categorical filters
// keyed by filter label (or raw column name).
type Query struct {
	Keywords string
	Filters  map[string]string
}

// RecordProvider supplies records to the engine. *Store implements it.
type RecordProvider interface {
	Fetch(ctx context.Context) (Result, error)
}

// Engine answers searches and option lookups over a RecordProvider.
type Engine struct {
	records RecordProvider
	fields  []FilterField
}

// NewEngine creates an Engine using fields to resolve filter labels.
func NewEngine(records RecordProvider, fields []FilterField) *Engine {
	return &Engine{records: records, fields: fields}
}

// Fields returns the configured filter fields.
func (e *Engine) Fields() []FilterField {
	return e.fields
}

// Search returns the records matching q, in source order.
func (e *Engine) Search(ctx context.Context, q Query) ([]Record, error) {
	res, err := e.SearchResult(ctx, q)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// SearchResult is Search with the provenance of the underlying data.
func (e *Engine) SearchResult(ctx context.Context, q Query) (Result, error) {
	q = SanitizeQuery(q)

	res, err := e.records.Fetch(ctx)
	if err != nil {
		return Result{}, err
	}
	res.Records = FilterRecords(res.Records, q, e.fields)
	return res, nil
}

// SanitizeQuery truncates every value to MaxFilterLength characters, removes
// angle brackets and trims. Values that end up empty are dropped.
func SanitizeQuery(q Query) Query {
	out := Query{
		Keywords: sanitizeValue(q.Keywords),
		Filters:  make(map[string]string, len(q.Filters)),
	}
	for label, value := range q.Filters {
		if v := sanitizeValue(value); v != "" {
			out.Filters[label] = v
		}
	}
	return out
}

var angleBrackets = strings.NewReplacer("<", "", ">", "")

func sanitizeValue(v string) string {
	if r := []rune(v); len(r) > MaxFilterLength {
		v = string(r[:MaxFilterLength])
	}
	return strings.TrimSpace(angleBrackets.Replace(v))
}

// FilterRecords applies an already sanitized query. Keywords must fuzzily
// match the keyword fields; every filter must equal one atomic value of the
// resolved field after text normalization.
func FilterRecords(records []Record, q Query, fields []FilterField) []Record {
	type filter struct {
		field FieldKey
		value string
	}
	filters := make([]filter, 0, len(q.Filters))
	for label, value := range q.Filters {
		filters = append(filters, filter{
			field: FieldForLabel(label, fields),
			value: NormalizeText(value),
		})
	}

	matched := make([]Record, 0)
	for _, rec := range records {
		if q.Keywords != "" && !Matches(q.Keywords, keywordText(rec)) {
			continue
		}

		ok := true
		for _, f := range filters {
			if !matchesAtomic(rec.Get(f.field), f.value) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, rec)
		}
	}
	return matched
}

func keywordText(rec Record) string {
	parts := make([]string, len(KeywordFields))
	for i, key := range KeywordFields {
		parts[i] = rec.Get(key)
	}
	return strings.Join(parts, " ")
}

// matchesAtomic reports whether any atomic value of cell normalizes to want.
func matchesAtomic(cell, want string) bool {
	if cell == "" {
		return false
	}
	for _, v := range SplitValues(cell) {
		if NormalizeText(v) == want {
			return true
		}
	}
	return false
}
