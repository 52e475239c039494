// Package envutil implements per-trace environment variable overrides:
// os.Setenv is process-wide, so concurrent replayed requests
// for different traces must not clobber each other's environment. This
// keeps overrides in a map keyed by replay trace id instead, and
// exposes a Getenv that consults the active trace's overrides before
// falling back to the real process environment.
package envutil

import (
	"context"
	"os"
	"sync"

	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/tdcontext"
)

// Tracker holds env var overrides keyed by replay trace id.
type Tracker struct {
	mu        sync.RWMutex
	byTraceID map[string]map[string]string
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{byTraceID: make(map[string]map[string]string)}
}

// Set installs vars as the override set for traceID, replacing any
// previous set for that trace.
func (t *Tracker) Set(traceID string, vars map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byTraceID[traceID] = vars
}

// Clear removes traceID's overrides, called once the request they were
// scoped to has finished.
func (t *Tracker) Clear(traceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byTraceID, traceID)
}

// Get returns traceID's override for key, if any.
func (t *Tracker) Get(traceID, key string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	vars, ok := t.byTraceID[traceID]
	if !ok {
		return "", false
	}
	v, ok := vars[key]
	return v, ok
}

// Getenv resolves key against ctx's active replay trace overrides
// first, falling back to the real process environment.
func (t *Tracker) Getenv(ctx context.Context, key string) string {
	if id, ok := tdcontext.ReplayTraceID(ctx); ok {
		if v, ok := t.Get(id.String(), key); ok {
			return v
		}
	}
	return os.Getenv(key)
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

// Getenv is the package-level convenience wrapper most drivers use:
// it is Default().Getenv, so a driver that wants "os.Getenv, but
// overridable per replay trace" just calls envutil.Getenv(ctx, key).
func Getenv(ctx context.Context, key string) string {
	return Default().Getenv(ctx, key)
}
