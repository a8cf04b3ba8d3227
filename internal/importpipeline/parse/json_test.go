package parse

import "testing"

func TestJSONParserArrayAtRoot(t *testing.T) {
	data := []byte(`[{"id":1,"name":"alpha"},{"id":2,"name":"beta"}]`)
	rows := collect(JSONParser{}.Parse(data, nil))
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Columns["name"] != "alpha" {
		t.Fatalf("row 0 = %+v", rows[0].Columns)
	}
}

func TestJSONParserNestedRootPath(t *testing.T) {
	data := []byte(`{"data":{"records":[{"id":1}]}}`)
	rows := collect(JSONParser{}.Parse(data, map[string]interface{}{"root_path": "data.records"}))
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Columns["id"] != float64(1) {
		t.Fatalf("row 0 id = %v", rows[0].Columns["id"])
	}
}

func TestJSONParserSingleObjectDocument(t *testing.T) {
	data := []byte(`{"id":1,"name":"solo"}`)
	rows := collect(JSONParser{}.Parse(data, nil))
	if len(rows) != 1 {
		t.Fatalf("expected 1 row for a single-object document, got %d", len(rows))
	}
	if rows[0].Columns["name"] != "solo" {
		t.Fatalf("row 0 = %+v", rows[0].Columns)
	}
}

func TestJSONParserInvalidJSONYieldsParseError(t *testing.T) {
	rows := collect(JSONParser{}.Parse([]byte(`{not json`), nil))
	if len(rows) != 1 || rows[0].ParseError == nil {
		t.Fatalf("expected a single row carrying a parse error, got %+v", rows)
	}
}

func TestJSONParserMissingRootPathKey(t *testing.T) {
	data := []byte(`{"data":{}}`)
	rows := collect(JSONParser{}.Parse(data, map[string]interface{}{"root_path": "data.records"}))
	if len(rows) != 1 || rows[0].ParseError == nil {
		t.Fatalf("expected a parse error for a missing root_path segment, got %+v", rows)
	}
}

func TestJSONParserNonObjectElementYieldsParseErrorButContinues(t *testing.T) {
	data := []byte(`[{"id":1},"not an object",{"id":2}]`)
	rows := collect(JSONParser{}.Parse(data, nil))
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows (including the errored element), got %d", len(rows))
	}
	if rows[1].ParseError == nil {
		t.Fatalf("expected element 1 to carry a parse error")
	}
	if rows[2].Columns["id"] != float64(2) {
		t.Fatalf("expected parsing to continue past the bad element")
	}
}
