// Package dateutil implements a replay-time clock tracker: the original
// source patches the global Date constructor so replayed code observes
// recorded timestamps; that has no honest Go
// equivalent (time.Now cannot be intercepted process-wide without a
// build-breaking indirection everywhere), so this instead exposes a
// tracker object keyed by replay trace id that drivers consult
// explicitly in place of time.Now, the same capability-injection
// substitution envutil.go uses for env vars.
package dateutil

import (
	"context"
	"sync"
	"time"

	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/tdcontext"
)

// Tracker remembers the last mock-observed timestamp per replay trace,
// so that multiple time.Now-equivalent calls within one replayed
// request see a stable, monotonically-consistent clock rather than
// drifting with wall-clock time.
type Tracker struct {
	mu      sync.RWMutex
	byTrace map[string]time.Time
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{byTrace: make(map[string]time.Time)}
}

// Observe records t as traceID's last observed mock timestamp. Drivers
// call this when a mock response body carries a timestamp field that
// downstream code is expected to treat as "now".
func (t *Tracker) Observe(traceID string, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byTrace[traceID] = ts
}

// Clear removes traceID's tracked timestamp once its request is done.
func (t *Tracker) Clear(traceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byTrace, traceID)
}

// Now returns traceID's last observed timestamp, if any.
func (t *Tracker) Now(traceID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ts, ok := t.byTrace[traceID]
	return ts, ok
}

var (
	defaultMu      sync.Mutex
	defaultTracker *Tracker
)

// Default returns the process-wide Tracker, creating it on first use.
func Default() *Tracker {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultTracker == nil {
		defaultTracker = NewTracker()
	}
	return defaultTracker
}

// Now returns ctx's replay-trace clock if one has been observed,
// falling back to time.Now — the same fallback shape envutil.Getenv
// uses for env var overrides.
func Now(ctx context.Context) time.Time {
	if id, ok := tdcontext.ReplayTraceID(ctx); ok {
		if ts, ok := Default().Now(id.String()); ok {
			return ts
		}
	}
	return time.Now()
}
