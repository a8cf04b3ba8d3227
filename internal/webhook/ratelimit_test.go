package webhook

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRateLimiterUnlimitedWhenZero(t *testing.T) {
	r := NewRateLimiter(nil)
	id := uuid.New()
	for i := 0; i < 100; i++ {
		if !r.Allow(id, 0) {
			t.Fatalf("expected unlimited (maxPerHour=0) to always allow, failed at attempt %d", i)
		}
	}
}

func TestRateLimiterCapsWithinWindow(t *testing.T) {
	now := time.Now()
	r := NewRateLimiter(func() time.Time { return now })
	id := uuid.New()

	for i := 0; i < 3; i++ {
		if !r.Allow(id, 3) {
			t.Fatalf("expected attempt %d to be allowed under cap of 3", i)
		}
	}
	if r.Allow(id, 3) {
		t.Fatalf("expected the 4th attempt within the same hour to be rejected")
	}
}

func TestRateLimiterResetsAfterWindow(t *testing.T) {
	now := time.Now()
	r := NewRateLimiter(func() time.Time { return now })
	id := uuid.New()

	if !r.Allow(id, 1) {
		t.Fatalf("expected first attempt to be allowed")
	}
	if r.Allow(id, 1) {
		t.Fatalf("expected second attempt within the window to be rejected")
	}

	now = now.Add(time.Hour + time.Minute)
	if !r.Allow(id, 1) {
		t.Fatalf("expected attempt after the window rolled over to be allowed again")
	}
}

func TestRateLimiterIndependentPerToken(t *testing.T) {
	r := NewRateLimiter(nil)
	a, b := uuid.New(), uuid.New()

	if !r.Allow(a, 1) {
		t.Fatalf("expected first attempt for token a to be allowed")
	}
	if !r.Allow(b, 1) {
		t.Fatalf("expected token b's first attempt to be unaffected by token a's window")
	}
}
