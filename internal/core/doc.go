// Package core provides the search engine for the materials catalog.
//
// The catalog lives in a spreadsheet published as CSV, one row per material.
// This package turns that text into records and answers queries over them,
// independent of any transport or UI.
//
// # Pipeline
//
//	raw CSV text -> ParseCSV -> RawTable -> BuildRecords -> []Record
//	[]Record -> FilterRecords / CollectOptions -> results, filter options
//
// Headers are canonicalized with [NormalizeField], so "Tipo Ejercicio",
// "tipo_ejercicio" and "TIPO-EJERCICIO" all become the key "tipoejercicio".
// Category cells may hold several values ("Teoría, Ejercicio"); they are
// decomposed with [SplitValues] before filtering or listing options.
// Free-text keywords are compared with [Matches], which tolerates accents,
// punctuation and partial words.
//
// # Caching
//
// [Store] keeps one immutable record set and replaces it wholesale on each
// successful refresh. Entries are reused for [StoreConfig.CacheDuration].
// A failed refresh is retried once with the relaxed request profile; if that
// fails too the previous data is served with [StatusStale]. Only when no data
// exists at all does the transport error reach the caller.
// [ErrSourceNotConfigured] is never retried and never hidden by the cache.
//
// # Errors
//
// Errors are mapped to user-facing messages with [MapError]; each has a code
// (CFG001, SRC001-SRC003, ...) that can be quoted to support.
package core
