// Package parse implements the import pipeline's format parsers: CSV, JSON,
// XML and fixed-width readers that each yield rows as a lazy finite
// sequence, so a caller can start mapping/writing before the whole payload
// has been read.
package parse

// Row is one parsed record. ParseError is set (and Columns left nil) when
// the record could not be decoded at all; IsSkipped marks a record the
// format itself excludes (e.g. a blank CSV line) without being an error.
type Row struct {
	Columns    map[string]interface{}
	LineNumber int
	IsSkipped  bool
	ParseError error
}

// Seq is a lazy finite sequence of Rows, consumed with range-over-func:
//
//	for row := range p.Parse(data, cfg) { ... }
//
// The sequence stops early if the range body returns without continuing.
type Seq func(yield func(Row) bool)

// Parser turns raw bytes into a Seq of rows under a format-specific config.
type Parser interface {
	Parse(data []byte, cfg map[string]interface{}) Seq
}
