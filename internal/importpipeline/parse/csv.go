package parse

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// CSVParser reads delimited text. Recognised cfg keys: "delimiter" (single
// character, default ","), "has_header" (bool, default true), "skip_lines"
// (int, leading lines to discard before the header/first row).
type CSVParser struct{}

func (CSVParser) Parse(data []byte, cfg map[string]interface{}) Seq {
	return func(yield func(Row) bool) {
		delim := ','
		if d, ok := cfg["delimiter"].(string); ok && len(d) == 1 {
			delim = rune(d[0])
		}
		skipLines := intOpt(cfg, "skip_lines", 0)
		hasHeader := boolOpt(cfg, "has_header", true)

		r := csv.NewReader(bytes.NewReader(data))
		r.Comma = delim
		r.FieldsPerRecord = -1
		r.LazyQuotes = true

		var header []string
		line := 0
		for {
			record, err := r.Read()
			line++
			if err == io.EOF {
				return
			}
			if line <= skipLines {
				continue
			}
			if err != nil {
				if !yield(Row{LineNumber: line, ParseError: fmt.Errorf("parse: csv row %d: %w", line, err)}) {
					return
				}
				continue
			}
			if hasHeader && header == nil {
				header = record
				continue
			}
			cols := make(map[string]interface{}, len(record))
			for i, v := range record {
				key := fmt.Sprintf("col%d", i+1)
				if header != nil && i < len(header) {
					key = header[i]
				}
				cols[key] = v
			}
			if !yield(Row{Columns: cols, LineNumber: line}) {
				return
			}
		}
	}
}

func intOpt(cfg map[string]interface{}, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func boolOpt(cfg map[string]interface{}, key string, def bool) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return def
}

func stringOpt(cfg map[string]interface{}, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}
