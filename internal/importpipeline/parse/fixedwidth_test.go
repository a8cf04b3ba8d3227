package parse

import "testing"

func TestFixedWidthParserSlicesFieldsByOffset(t *testing.T) {
	data := []byte("ALPHA0010\nBETA 0025\n")
	cfg := map[string]interface{}{
		"fields": []interface{}{
			map[string]interface{}{"name": "code", "start": 0, "length": 5},
			map[string]interface{}{"name": "qty", "start": 5, "length": 4},
		},
	}
	rows := collect(FixedWidthParser{}.Parse(data, cfg))
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Columns["code"] != "ALPHA" || rows[0].Columns["qty"] != "0010" {
		t.Fatalf("row 0 = %+v", rows[0].Columns)
	}
	if rows[1].Columns["code"] != "BETA" {
		t.Fatalf("expected trailing spaces trimmed, got %q", rows[1].Columns["code"])
	}
}

func TestFixedWidthParserSkipsBlankLines(t *testing.T) {
	data := []byte("AAAAA\n\nBBBBB\n")
	cfg := map[string]interface{}{
		"fields": []interface{}{map[string]interface{}{"name": "code", "start": 0, "length": 5}},
	}
	rows := collect(FixedWidthParser{}.Parse(data, cfg))
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows including the blank one, got %d", len(rows))
	}
	if !rows[1].IsSkipped {
		t.Fatalf("expected the blank line to be marked IsSkipped")
	}
}

func TestFixedWidthParserMissingFieldsConfigYieldsError(t *testing.T) {
	rows := collect(FixedWidthParser{}.Parse([]byte("x"), map[string]interface{}{}))
	if len(rows) != 1 || rows[0].ParseError == nil {
		t.Fatalf("expected a parse error when \"fields\" is missing, got %+v", rows)
	}
}

func TestFixedWidthParserShortLineHandledGracefully(t *testing.T) {
	data := []byte("AB\n")
	cfg := map[string]interface{}{
		"fields": []interface{}{map[string]interface{}{"name": "code", "start": 0, "length": 10}},
	}
	rows := collect(FixedWidthParser{}.Parse(data, cfg))
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Columns["code"] != "AB" {
		t.Fatalf("expected a short line to be returned as-is, got %q", rows[0].Columns["code"])
	}
}
