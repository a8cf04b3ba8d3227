package importpipeline

import (
	"testing"
	"time"

	"github.com/reefdata/reef/internal/catalog"
)

func TestApplyMappingCastsDeclaredTypes(t *testing.T) {
	cfg := MappingConfig{Mappings: []catalog.ColumnMapping{
		{Source: "amount", Target: "amount_cents", DataType: "int"},
		{Source: "rate", Target: "rate", DataType: "decimal"},
		{Source: "active", Target: "is_active", DataType: "bool"},
		{Source: "created", Target: "created_at", DataType: "date"},
		{Source: "name", Target: "name", DataType: "string"},
	}}
	source := map[string]interface{}{
		"amount": "1200", "rate": "3.5", "active": "true",
		"created": "2026-07-30", "name": "widget",
	}

	row, err := applyMapping(cfg, source)
	if err != nil {
		t.Fatalf("applyMapping: %v", err)
	}
	if row.values["amount_cents"] != int64(1200) {
		t.Fatalf("amount_cents = %v, want int64(1200)", row.values["amount_cents"])
	}
	if row.values["rate"] != 3.5 {
		t.Fatalf("rate = %v, want 3.5", row.values["rate"])
	}
	if row.values["is_active"] != true {
		t.Fatalf("is_active = %v, want true", row.values["is_active"])
	}
	got, ok := row.values["created_at"].(time.Time)
	if !ok || got.Format("2006-01-02") != "2026-07-30" {
		t.Fatalf("created_at = %v, want 2026-07-30", row.values["created_at"])
	}
	if row.values["name"] != "widget" {
		t.Fatalf("name = %v, want widget", row.values["name"])
	}
}

func TestApplyMappingMissingColumnUsesDefaultOrSkipOrNil(t *testing.T) {
	cfg := MappingConfig{Mappings: []catalog.ColumnMapping{
		{Source: "missing1", Target: "t1", Default: "0", DataType: "int"},
		{Source: "missing2", Target: "t2", SkipOnNull: true},
		{Source: "missing3", Target: "t3"},
	}}

	row, err := applyMapping(cfg, map[string]interface{}{})
	if err != nil {
		t.Fatalf("applyMapping: %v", err)
	}
	if row.values["t1"] != int64(0) {
		t.Fatalf("t1 = %v, want int64(0) from default", row.values["t1"])
	}
	if _, present := row.values["t2"]; present {
		t.Fatalf("expected t2 to be absent (skip_on_null), got %v", row.values["t2"])
	}
	if v, present := row.values["t3"]; !present || v != nil {
		t.Fatalf("expected t3 to be present and nil, got present=%v value=%v", present, v)
	}
}

func TestApplyMappingInvalidNumericCastYieldsNilNotError(t *testing.T) {
	cfg := MappingConfig{Mappings: []catalog.ColumnMapping{{Source: "v", Target: "v", DataType: "int"}}}
	row, err := applyMapping(cfg, map[string]interface{}{"v": "not-a-number"})
	if err != nil {
		t.Fatalf("applyMapping should not error on a bad cast, got %v", err)
	}
	if row.values["v"] != nil {
		t.Fatalf("expected a failed numeric cast to yield nil, got %v", row.values["v"])
	}
}

func TestApplyMappingAutoMapsUnmappedColumnsCaseInsensitively(t *testing.T) {
	cfg := MappingConfig{
		Mappings:       []catalog.ColumnMapping{{Source: "id", Target: "id", DataType: "int"}},
		AutoMapColumns: true,
		TargetColumns:  []string{"ID", "Description"},
	}
	row, err := applyMapping(cfg, map[string]interface{}{"id": "7", "description": "hello"})
	if err != nil {
		t.Fatalf("applyMapping: %v", err)
	}
	if row.values["Description"] != "hello" {
		t.Fatalf("expected auto-mapped column to resolve case-insensitively to 'Description', got keys %+v", row.values)
	}
}

func TestApplyMappingSkipUnmappedSuppressesAutoMap(t *testing.T) {
	cfg := MappingConfig{
		Mappings:       []catalog.ColumnMapping{{Source: "id", Target: "id", DataType: "int"}},
		AutoMapColumns: true,
		SkipUnmapped:   true,
	}
	row, err := applyMapping(cfg, map[string]interface{}{"id": "7", "extra": "x"})
	if err != nil {
		t.Fatalf("applyMapping: %v", err)
	}
	if _, present := row.values["extra"]; present {
		t.Fatalf("expected skip_unmapped to suppress auto-mapping of unmapped columns")
	}
}

func TestMatchTargetColumnFallsBackToSourceName(t *testing.T) {
	if got := matchTargetColumn("unknown_col", []string{"A", "B"}); got != "unknown_col" {
		t.Fatalf("matchTargetColumn = %q, want source name when no match", got)
	}
}

func TestParseDateTimeAcceptsKnownLayouts(t *testing.T) {
	cases := []string{"2026-07-30", "2026-07-30 14:05:00", "07/30/2026"}
	for _, s := range cases {
		if _, ok := parseDateTime(s); !ok {
			t.Fatalf("parseDateTime(%q) failed, expected a match", s)
		}
	}
	if _, ok := parseDateTime("not-a-date"); ok {
		t.Fatalf("expected parseDateTime to reject an unrecognised format")
	}
}
