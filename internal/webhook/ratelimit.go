package webhook

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// window tracks one token's fixed hourly request count.
type window struct {
	start time.Time
	count int
}

// RateLimiter enforces the per-token hourly request cap documented on
// catalog.WebhookTrigger.MaxPerHour: 0 is unlimited, 1 is once-per-window.
// Windows are fixed (not sliding), reset on first use after the hour
// boundary passes, mirroring internal/throttle's process-wide map idiom.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[uuid.UUID]*window
	now     func() time.Time
}

// NewRateLimiter builds a RateLimiter. nowFn may be nil to use time.Now.
func NewRateLimiter(nowFn func() time.Time) *RateLimiter {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &RateLimiter{windows: make(map[uuid.UUID]*window), now: nowFn}
}

// Allow reports whether tokenID may fire again under maxPerHour, and records
// the attempt if so. maxPerHour <= 0 means unlimited.
func (r *RateLimiter) Allow(tokenID uuid.UUID, maxPerHour int) bool {
	if maxPerHour <= 0 {
		return true
	}

	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[tokenID]
	if !ok || now.Sub(w.start) >= time.Hour {
		r.windows[tokenID] = &window{start: now, count: 1}
		return true
	}
	if w.count >= maxPerHour {
		return false
	}
	w.count++
	return true
}
