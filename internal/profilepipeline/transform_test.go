package profilepipeline

import (
	"strings"
	"testing"

	"github.com/reefdata/reef/internal/catalog"
	"github.com/reefdata/reef/internal/sqlclient"
)

func TestRenderDefaultFormatCSV(t *testing.T) {
	rows := []sqlclient.Row{{"b": "2", "a": "1"}}
	out, err := renderDefaultFormat("csv", rows)
	if err != nil {
		t.Fatalf("renderDefaultFormat: %v", err)
	}
	want := "a,b\r\n1,2\r\n"
	if string(out) != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestRenderDefaultFormatCSVEscapesSpecialChars(t *testing.T) {
	rows := []sqlclient.Row{{"note": "has,comma and \"quote\""}}
	out, err := renderDefaultFormat("csv", rows)
	if err != nil {
		t.Fatalf("renderDefaultFormat: %v", err)
	}
	if !strings.Contains(string(out), `"has,comma and ""quote"""`) {
		t.Fatalf("expected escaped field, got %q", out)
	}
}

func TestRenderDefaultFormatCSVEmptyRows(t *testing.T) {
	out, err := renderDefaultFormat("csv", nil)
	if err != nil {
		t.Fatalf("renderDefaultFormat: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty output for no rows, got %q", out)
	}
}

func TestRenderDefaultFormatJSON(t *testing.T) {
	rows := []sqlclient.Row{{"a": float64(1)}}
	out, err := renderDefaultFormat("json", rows)
	if err != nil {
		t.Fatalf("renderDefaultFormat: %v", err)
	}
	if !strings.Contains(string(out), `"a":1`) {
		t.Fatalf("got %q", out)
	}
}

func TestRenderTemplateUsesTemplateBodyOverDefault(t *testing.T) {
	profile := &catalog.Profile{
		Code:             "P-1",
		TransformOptions: `{"template_body":"rows={{len .Rows}}"}`,
	}
	rows := []sqlclient.Row{{"a": 1}, {"a": 2}}
	out, err := renderTemplate(profile, rows)
	if err != nil {
		t.Fatalf("renderTemplate: %v", err)
	}
	if string(out) != "rows=2" {
		t.Fatalf("got %q", out)
	}
}

func TestRenderTemplateFallsBackToDefaultFormatWhenNoTemplateBody(t *testing.T) {
	profile := &catalog.Profile{Code: "P-2", OutputFormat: "json"}
	rows := []sqlclient.Row{{"a": float64(1)}}
	out, err := renderTemplate(profile, rows)
	if err != nil {
		t.Fatalf("renderTemplate: %v", err)
	}
	if !strings.Contains(string(out), `"a":1`) {
		t.Fatalf("expected JSON fallback, got %q", out)
	}
}

func TestCSVEscape(t *testing.T) {
	if got := csvEscape("plain"); got != "plain" {
		t.Fatalf("got %q", got)
	}
	if got := csvEscape("a,b"); got != `"a,b"` {
		t.Fatalf("got %q", got)
	}
}

func TestOrderedColumnsIsSorted(t *testing.T) {
	cols := orderedColumns(sqlclient.Row{"z": 1, "a": 2, "m": 3})
	want := []string{"a", "m", "z"}
	for i, c := range want {
		if cols[i] != c {
			t.Fatalf("orderedColumns = %v, want %v", cols, want)
		}
	}
}
