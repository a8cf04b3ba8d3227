package parse

import "fmt"

// ForFormat returns the Parser for a profile's source_format value.
func ForFormat(format string) (Parser, error) {
	switch format {
	case "csv", "":
		return CSVParser{}, nil
	case "json":
		return JSONParser{}, nil
	case "xml":
		return XMLParser{}, nil
	case "fixedwidth":
		return FixedWidthParser{}, nil
	default:
		return nil, fmt.Errorf("parse: unsupported source format %q", format)
	}
}
