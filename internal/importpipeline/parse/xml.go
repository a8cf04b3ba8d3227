package parse

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
)

// XMLParser streams an XML document and emits one Row per occurrence of
// "row_element" (default "row"), taking each of its immediate child
// elements as a column (by tag name, text content as the value).
type XMLParser struct{}

func (XMLParser) Parse(data []byte, cfg map[string]interface{}) Seq {
	return func(yield func(Row) bool) {
		rowElement := stringOpt(cfg, "row_element", "row")
		dec := xml.NewDecoder(bytes.NewReader(data))
		line := 0

		for {
			tok, err := dec.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				if !yield(Row{LineNumber: line, ParseError: fmt.Errorf("parse: xml token: %w", err)}) {
					return
				}
				return
			}

			start, ok := tok.(xml.StartElement)
			if !ok || start.Name.Local != rowElement {
				continue
			}
			line++

			cols, err := decodeElementChildren(dec)
			if err != nil {
				if !yield(Row{LineNumber: line, ParseError: fmt.Errorf("parse: xml row %d: %w", line, err)}) {
					return
				}
				continue
			}
			if !yield(Row{Columns: cols, LineNumber: line}) {
				return
			}
		}
	}
}

// decodeElementChildren reads tokens until the enclosing element's EndElement,
// collecting each immediate child's tag name and text content.
func decodeElementChildren(dec *xml.Decoder) (map[string]interface{}, error) {
	cols := make(map[string]interface{})
	depth := 0
	var currentTag string
	var text bytes.Buffer

	for {
		tok, err := dec.Token()
		if err != nil {
			return cols, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				currentTag = t.Name.Local
				text.Reset()
			}
			depth++
		case xml.CharData:
			if depth == 1 {
				text.Write(t)
			}
		case xml.EndElement:
			depth--
			if depth == 0 {
				cols[currentTag] = text.String()
			}
			if depth < 0 {
				return cols, nil
			}
		}
	}
}
