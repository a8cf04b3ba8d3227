package parse

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// FieldSpec describes one fixed-width column: its name, 0-based start
// offset, and byte length.
type FieldSpec struct {
	Name   string
	Start  int
	Length int
}

// FixedWidthParser splits each line of text by byte-offset column
// specifications. cfg["fields"] must be a []interface{} of objects with
// "name", "start", "length" keys (as produced by JSON-decoding the
// profile's format_config).
type FixedWidthParser struct{}

func (FixedWidthParser) Parse(data []byte, cfg map[string]interface{}) Seq {
	return func(yield func(Row) bool) {
		fields, err := fieldSpecsFromConfig(cfg)
		if err != nil {
			yield(Row{LineNumber: 1, ParseError: err})
			return
		}

		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			text := scanner.Text()
			if strings.TrimSpace(text) == "" {
				if !yield(Row{LineNumber: line, IsSkipped: true}) {
					return
				}
				continue
			}

			cols := make(map[string]interface{}, len(fields))
			for _, f := range fields {
				cols[f.Name] = sliceField(text, f)
			}
			if !yield(Row{Columns: cols, LineNumber: line}) {
				return
			}
		}
	}
}

func sliceField(line string, f FieldSpec) string {
	if f.Start >= len(line) {
		return ""
	}
	end := f.Start + f.Length
	if end > len(line) {
		end = len(line)
	}
	return strings.TrimRight(line[f.Start:end], " ")
}

func fieldSpecsFromConfig(cfg map[string]interface{}) ([]FieldSpec, error) {
	raw, ok := cfg["fields"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("parse: fixed-width format_config requires a \"fields\" array")
	}
	specs := make([]FieldSpec, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("parse: fields[%d] is not an object", i)
		}
		name, _ := m["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("parse: fields[%d] missing \"name\"", i)
		}
		specs = append(specs, FieldSpec{
			Name:   name,
			Start:  intOpt(m, "start", 0),
			Length: intOpt(m, "length", 0),
		})
	}
	return specs, nil
}
