// Package blocking implements the Trace Blocking Manager: a
// process-wide, never-cleared-except-by-retention kill switch that
// stops a trace from producing or exporting any further spans once it
// has been blocked.
package blocking

import (
	"sync"
	"time"

	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/idgen"
)

// DefaultRetention is how long a trace's blocking state is kept around
// after it was last observed before Sweep may prune it.
const DefaultRetention = 24 * time.Hour

type entry struct {
	blocked    bool
	lastSeen   time.Time
}

// Manager is the process-wide trace blocking map. The zero value is not
// usable; use New.
type Manager struct {
	mu        sync.RWMutex
	traces    map[idgen.TraceID]*entry
	retention time.Duration
}

// New creates a Manager with the given retention window for Sweep.
func New(retention time.Duration) *Manager {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Manager{
		traces:    make(map[idgen.TraceID]*entry),
		retention: retention,
	}
}

// touch records that a trace was observed, creating its entry if absent.
// Callers must hold mu for writing.
func (m *Manager) touch(id idgen.TraceID) *entry {
	e, ok := m.traces[id]
	if !ok {
		e = &entry{}
		m.traces[id] = e
	}
	e.lastSeen = time.Now()
	return e
}

// BlockTrace marks id as blocked. It is never cleared except by Sweep's
// retention-based pruning, which only removes the bookkeeping entry, not
// an override of the decision for any span still in flight for that id.
func (m *Manager) BlockTrace(id idgen.TraceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.touch(id)
	e.blocked = true
}

// IsBlocked reports whether id has been blocked. Observing a trace via
// IsBlocked also refreshes its retention clock, since an actively
// consulted trace is clearly still in use.
func (m *Manager) IsBlocked(id idgen.TraceID) bool {
	m.mu.RLock()
	e, ok := m.traces[id]
	blocked := ok && e.blocked
	m.mu.RUnlock()
	if ok {
		m.mu.Lock()
		m.touch(id)
		m.mu.Unlock()
	}
	return blocked
}

// Sweep removes bookkeeping for traces not observed within the
// configured retention window. It does not "unblock" anything still
// live; it only bounds memory for traces the process will never see
// again.
func (m *Manager) Sweep() int {
	cutoff := time.Now().Add(-m.retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.traces {
		if e.lastSeen.Before(cutoff) {
			delete(m.traces, id)
			removed++
		}
	}
	return removed
}

// Len reports how many traces are currently tracked, for tests and metrics.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.traces)
}

// RunSweeper starts a goroutine that calls Sweep on the given interval
// until stop is closed. Mirrors the same timed-loop shape the Batch
// Processor uses for its flush ticker.
func (m *Manager) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				m.Sweep()
			case <-stop:
				return
			}
		}
	}()
}
