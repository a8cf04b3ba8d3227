package parse

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JSONParser reads a JSON document holding an array of objects, either at
// the document root or nested under a dotted "root_path" (e.g.
// "data.records"). Each array element becomes one Row; non-object elements
// are reported as parse errors.
type JSONParser struct{}

func (JSONParser) Parse(data []byte, cfg map[string]interface{}) Seq {
	return func(yield func(Row) bool) {
		var doc interface{}
		if err := json.Unmarshal(data, &doc); err != nil {
			yield(Row{LineNumber: 1, ParseError: fmt.Errorf("parse: invalid json document: %w", err)})
			return
		}

		root := stringOpt(cfg, "root_path", "")
		if root != "" {
			for _, seg := range strings.Split(root, ".") {
				m, ok := doc.(map[string]interface{})
				if !ok {
					yield(Row{LineNumber: 1, ParseError: fmt.Errorf("parse: root_path %q: not an object at %q", root, seg)})
					return
				}
				doc, ok = m[seg]
				if !ok {
					yield(Row{LineNumber: 1, ParseError: fmt.Errorf("parse: root_path %q: missing key %q", root, seg)})
					return
				}
			}
		}

		items, ok := doc.([]interface{})
		if !ok {
			// A single-object document is treated as one row.
			if obj, ok := doc.(map[string]interface{}); ok {
				yield(Row{Columns: obj, LineNumber: 1})
				return
			}
			yield(Row{LineNumber: 1, ParseError: fmt.Errorf("parse: json root is not an array or object")})
			return
		}

		for i, item := range items {
			line := i + 1
			obj, ok := item.(map[string]interface{})
			if !ok {
				if !yield(Row{LineNumber: line, ParseError: fmt.Errorf("parse: json element %d is not an object", line)}) {
					return
				}
				continue
			}
			if !yield(Row{Columns: obj, LineNumber: line}) {
				return
			}
		}
	}
}
