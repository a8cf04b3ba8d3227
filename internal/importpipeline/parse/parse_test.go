package parse

import "testing"

func collect(seq Seq) []Row {
	var rows []Row
	seq(func(r Row) bool {
		rows = append(rows, r)
		return true
	})
	return rows
}

func TestForFormatResolvesKnownFormats(t *testing.T) {
	cases := map[string]Parser{
		"csv":        CSVParser{},
		"":           CSVParser{},
		"json":       JSONParser{},
		"xml":        XMLParser{},
		"fixedwidth": FixedWidthParser{},
	}
	for format, want := range cases {
		got, err := ForFormat(format)
		if err != nil {
			t.Fatalf("ForFormat(%q): %v", format, err)
		}
		if got != want {
			t.Fatalf("ForFormat(%q) = %T, want %T", format, got, want)
		}
	}
}

func TestForFormatRejectsUnknown(t *testing.T) {
	if _, err := ForFormat("yaml"); err == nil {
		t.Fatalf("expected an error for an unsupported format")
	}
}
