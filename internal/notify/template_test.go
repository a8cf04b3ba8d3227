package notify

import (
	"testing"
	"time"
)

func TestRenderSubstitutesKnownSentinels(t *testing.T) {
	got := render("{ProfileName} finished, execution {ExecutionId}", fields{
		"ProfileName": "nightly-export",
		"ExecutionId": "abc-123",
	})
	want := "nightly-export finished, execution abc-123"
	if got != want {
		t.Fatalf("render() = %q, want %q", got, want)
	}
}

func TestRenderLeavesUnknownSentinelsUntouched(t *testing.T) {
	got := render("value is {Unknown}", fields{"ProfileName": "x"})
	want := "value is {Unknown}"
	if got != want {
		t.Fatalf("render() = %q, want %q", got, want)
	}
}

func TestTimeFieldsExpandsFamily(t *testing.T) {
	at := time.Date(2026, 7, 30, 14, 5, 0, 0, time.UTC)
	f := timeFields("StartedAt", at)

	if f["StartedAt.Date"] != "2026-07-30" {
		t.Fatalf("StartedAt.Date = %q, want 2026-07-30", f["StartedAt.Date"])
	}
	if f["StartedAt.Time"] != "14:05:00" {
		t.Fatalf("StartedAt.Time = %q, want 14:05:00", f["StartedAt.Time"])
	}
	if _, ok := f["StartedAt.Unix"]; !ok {
		t.Fatalf("expected StartedAt.Unix to be present")
	}
}

func TestMergeLaterOverridesEarlier(t *testing.T) {
	out := merge(fields{"A": "1", "B": "2"}, fields{"B": "3"})
	if out["A"] != "1" || out["B"] != "3" {
		t.Fatalf("merge() = %+v, want A=1 B=3", out)
	}
}
