package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reefdata/reef/internal/catalog"
	"github.com/reefdata/reef/internal/throttle"
)

type capturedWebhookCall struct {
	payload   webhookPayload
	signature string
}

func newTestServer(t *testing.T, calls *[]capturedWebhookCall, mu *sync.Mutex) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Fatalf("decode webhook payload: %v", err)
		}
		mu.Lock()
		*calls = append(*calls, capturedWebhookCall{payload: p, signature: r.Header.Get("X-Reef-Signature")})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
}

func TestNotifyExecutionTerminalDispatchesWebhook(t *testing.T) {
	var mu sync.Mutex
	var calls []capturedWebhookCall
	srv := newTestServer(t, &calls, &mu)
	defer srv.Close()

	svc := New(Config{WebhookURL: srv.URL, WebhookSecret: "s3cr3t"}, throttle.New(nil), zap.NewNop())

	execution := &catalog.Execution{
		ProfileID: uuid.New(),
		Status:    catalog.StatusSuccess,
		StartedAt: time.Now().Add(-time.Minute),
	}
	completed := time.Now()
	execution.CompletedAt = &completed
	execution.ID = uuid.New()

	profile := &catalog.Profile{Name: "nightly-export"}
	profile.ID = uuid.New()

	if err := svc.NotifyExecutionTerminal(t.Context(), execution, profile); err != nil {
		t.Fatalf("NotifyExecutionTerminal: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one webhook call, got %d", len(calls))
	}
	if calls[0].signature == "" {
		t.Fatalf("expected a signature header when WebhookSecret is set")
	}
	if calls[0].payload.Fields["ProfileName"] != "nightly-export" {
		t.Fatalf("expected ProfileName field to be nightly-export, got %q", calls[0].payload.Fields["ProfileName"])
	}
}

func TestNotifyExecutionTerminalHonoursCooldown(t *testing.T) {
	var mu sync.Mutex
	var calls []capturedWebhookCall
	srv := newTestServer(t, &calls, &mu)
	defer srv.Close()

	now := time.Now()
	clock := throttle.New(func() time.Time { return now })
	svc := New(Config{WebhookURL: srv.URL}, clock, zap.NewNop())

	profileID := uuid.New()
	profile := &catalog.Profile{Name: "p"}
	profile.ID = profileID

	mk := func() *catalog.Execution {
		e := &catalog.Execution{ProfileID: profileID, Status: catalog.StatusSuccess, StartedAt: now}
		e.ID = uuid.New()
		return e
	}

	if err := svc.NotifyExecutionTerminal(t.Context(), mk(), profile); err != nil {
		t.Fatalf("first notify: %v", err)
	}
	if err := svc.NotifyExecutionTerminal(t.Context(), mk(), profile); err != nil {
		t.Fatalf("second notify: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 1 {
		t.Fatalf("expected the second call within the cooldown window to be suppressed, got %d calls", len(calls))
	}
}

func TestNotifyExecutionTerminalSkipsRunningStatus(t *testing.T) {
	var mu sync.Mutex
	var calls []capturedWebhookCall
	srv := newTestServer(t, &calls, &mu)
	defer srv.Close()

	svc := New(Config{WebhookURL: srv.URL}, throttle.New(nil), zap.NewNop())
	execution := &catalog.Execution{Status: catalog.StatusRunning, StartedAt: time.Now()}
	execution.ID = uuid.New()
	profile := &catalog.Profile{Name: "p"}
	profile.ID = uuid.New()

	if err := svc.NotifyExecutionTerminal(t.Context(), execution, profile); err != nil {
		t.Fatalf("NotifyExecutionTerminal: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 0 {
		t.Fatalf("expected a non-terminal status to never dispatch, got %d calls", len(calls))
	}
}
