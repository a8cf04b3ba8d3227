package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRecorderExposesObservedCounters(t *testing.T) {
	r := New()
	r.ObserveTick(3)
	r.ObserveRun(true, 2*time.Second)
	r.ObserveRun(false, 500*time.Millisecond)
	r.ObserveCircuitOpen()
	r.ObserveNotification("email", "profile_Success")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"reef_scheduler_queue_depth 3",
		`reef_scheduler_runs_total{outcome="success"} 1`,
		`reef_scheduler_runs_total{outcome="failure"} 1`,
		"reef_scheduler_circuit_open_total 1",
		`reef_notify_sent_total{channel="email",kind="profile_Success"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics output to contain %q, got:\n%s", want, body)
		}
	}
}
