// Package throttle implements Reef's notification cooldown gate: a
// process-wide key→timestamp map with per-event-kind cooldowns and periodic
// eviction of stale entries, following the background-goroutine /
// signal-driven-shutdown idiom used by cmd/server/main.go.
package throttle

import (
	"sync"
	"time"
)

// Cooldowns are the configured per-event-kind cooldown durations.
const (
	CooldownProfileFailure    = 300 * time.Second
	CooldownProfileSuccess    = 1800 * time.Second
	CooldownJobFailure        = 300 * time.Second
	CooldownJobSuccess        = 1800 * time.Second
	CooldownDatabaseSizeAlert = 3600 * time.Second
	CooldownNone              = 0 * time.Second // user/apikey/webhook creation
)

// gcInterval is how often the background sweep runs.
const gcInterval = 10 * time.Minute

// staleAfter is the age past which an entry is evicted regardless of its
// event's cooldown.
const staleAfter = 24 * time.Hour

type key struct {
	eventKind string
	key       string
}

// Throttler is a concurrent, process-wide cooldown gate. Create one with New
// (the zero value is not usable); call Run to start the background GC loop
// and Stop to end it.
type Throttler struct {
	mu      sync.Mutex
	entries map[key]time.Time
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a Throttler. nowFn may be nil to use time.Now; tests inject a
// deterministic clock.
func New(nowFn func() time.Time) *Throttler {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Throttler{
		entries: make(map[key]time.Time),
		now:     nowFn,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// ShouldNotify reports whether a notification for (eventKind, k) should fire
// given cooldown. It returns true if no prior timestamp exists, or the
// stored one is older than cooldown — and in both cases atomically updates
// the stored timestamp to now, so no two calls within the same cooldown
// window both return true.
func (t *Throttler) ShouldNotify(eventKind, k string, cooldown time.Duration) bool {
	now := t.now()
	gk := key{eventKind: eventKind, key: k}

	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.entries[gk]
	if ok && now.Sub(last) < cooldown {
		return false
	}
	t.entries[gk] = now
	return true
}

// Run starts the background GC loop, evicting entries older than 24h every
// 10 minutes. It blocks until Stop is called or ctx-like stop signal fires;
// callers typically invoke it with `go t.Run()`.
func (t *Throttler) Run() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	defer close(t.doneCh)

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.gc()
		}
	}
}

// Stop signals Run to exit and waits for it to finish.
func (t *Throttler) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
	<-t.doneCh
}

func (t *Throttler) gc() {
	cutoff := t.now().Add(-staleAfter)
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, ts := range t.entries {
		if ts.Before(cutoff) {
			delete(t.entries, k)
		}
	}
}

// Len reports the number of tracked (eventKind,key) pairs — used by tests
// and GC verification.
func (t *Throttler) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
