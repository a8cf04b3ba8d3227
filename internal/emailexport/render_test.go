package emailexport

import (
	"testing"

	"github.com/reefdata/reef/internal/sqlclient"
)

func TestTextTemplateRendererSubstitutes(t *testing.T) {
	r := TextTemplateRenderer{}
	got, err := r.Render("Export for {{.name}} on {{.date}}", map[string]interface{}{"name": "nightly", "date": "2026-07-30"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "Export for nightly on 2026-07-30"
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestTextTemplateRendererInvalidTemplate(t *testing.T) {
	r := TextTemplateRenderer{}
	if _, err := r.Render("{{.broken", nil); err == nil {
		t.Fatalf("expected an error for an unparsable template")
	}
}

func TestResolveSubjectPrefersHardcodedThenColumnThenFallback(t *testing.T) {
	r := TextTemplateRenderer{}

	got, err := resolveSubject(r, "Nightly {{.name}}", "subject_col", sqlclient.Row{}, "p1", "nightly-export")
	if err != nil {
		t.Fatalf("resolveSubject: %v", err)
	}
	if got != "Nightly nightly-export" {
		t.Fatalf("got %q", got)
	}

	got, err = resolveSubject(r, "", "subject_col", sqlclient.Row{"subject_col": "Custom Subject"}, "p1", "nightly-export")
	if err != nil {
		t.Fatalf("resolveSubject: %v", err)
	}
	if got != "Custom Subject" {
		t.Fatalf("got %q, want column value", got)
	}

	got, err = resolveSubject(r, "", "", sqlclient.Row{}, "p1", "nightly-export")
	if err != nil {
		t.Fatalf("resolveSubject: %v", err)
	}
	if got != "Reef Export from nightly-export" {
		t.Fatalf("got %q, want fallback", got)
	}
}

func TestResolveMailboxWithDisplayName(t *testing.T) {
	name, addr, err := resolveMailbox("Ops Team;ops@example.com")
	if err != nil {
		t.Fatalf("resolveMailbox: %v", err)
	}
	if name != "Ops Team" || addr != "ops@example.com" {
		t.Fatalf("got name=%q addr=%q", name, addr)
	}
}

func TestResolveMailboxBareAddress(t *testing.T) {
	name, addr, err := resolveMailbox("  ops@example.com  ")
	if err != nil {
		t.Fatalf("resolveMailbox: %v", err)
	}
	if name != "" || addr != "ops@example.com" {
		t.Fatalf("got name=%q addr=%q", name, addr)
	}
}

func TestResolveMailboxSanitizesControlCharsInDisplayName(t *testing.T) {
	name, _, err := resolveMailbox("Ops\r\nTeam;ops@example.com")
	if err != nil {
		t.Fatalf("resolveMailbox: %v", err)
	}
	if name != "OpsTeam" {
		t.Fatalf("expected control characters stripped, got %q", name)
	}
}

func TestResolveMailboxRejectsEmptyAndMalformed(t *testing.T) {
	if _, _, err := resolveMailbox(""); err == nil {
		t.Fatalf("expected error for empty recipient")
	}
	if _, _, err := resolveMailbox("not-an-email"); err == nil {
		t.Fatalf("expected error for malformed address")
	}
	if _, _, err := resolveMailbox("has space@example.com"); err == nil {
		t.Fatalf("expected error for address containing whitespace")
	}
}
