package throttle

import (
	"testing"
	"time"
)

func TestShouldNotifyFirstCallTrue(t *testing.T) {
	th := New(nil)
	if !th.ShouldNotify("profile_failure", "p1", CooldownProfileFailure) {
		t.Fatalf("expected first call to return true")
	}
}

func TestShouldNotifyWithinCooldownFalse(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	th := New(func() time.Time { return now })

	if !th.ShouldNotify("job_failure", "j1", CooldownJobFailure) {
		t.Fatalf("expected first call true")
	}
	now = now.Add(1 * time.Second)
	if th.ShouldNotify("job_failure", "j1", CooldownJobFailure) {
		t.Fatalf("expected second call within cooldown to return false")
	}
}

func TestShouldNotifyAfterCooldownTrue(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	th := New(func() time.Time { return now })

	th.ShouldNotify("job_failure", "j1", CooldownJobFailure)
	now = now.Add(CooldownJobFailure + time.Second)
	if !th.ShouldNotify("job_failure", "j1", CooldownJobFailure) {
		t.Fatalf("expected call after cooldown elapsed to return true")
	}
}

func TestShouldNotifyNoThrottlingWhenCooldownZero(t *testing.T) {
	th := New(nil)
	if !th.ShouldNotify("webhook_created", "w1", CooldownNone) {
		t.Fatalf("expected true")
	}
	if !th.ShouldNotify("webhook_created", "w1", CooldownNone) {
		t.Fatalf("expected true again since cooldown is zero")
	}
}

func TestGCEvictsStaleEntries(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	th := New(func() time.Time { return now })

	th.ShouldNotify("profile_success", "p1", CooldownProfileSuccess)
	if th.Len() != 1 {
		t.Fatalf("expected 1 entry")
	}

	now = now.Add(25 * time.Hour)
	th.gc()
	if th.Len() != 0 {
		t.Fatalf("expected stale entry to be evicted, got %d entries", th.Len())
	}
}

func TestDifferentKeysIndependentCooldowns(t *testing.T) {
	th := New(nil)
	if !th.ShouldNotify("profile_failure", "a", CooldownProfileFailure) {
		t.Fatalf("expected true for key a")
	}
	if !th.ShouldNotify("profile_failure", "b", CooldownProfileFailure) {
		t.Fatalf("expected true for key b — independent cooldowns")
	}
}
