package adapter

import (
	"context"
	"sync"

	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/cleanspan"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/export"
)

// DefaultMemoryCapacity bounds the in-memory ring buffer so a long-running
// replay session cannot grow this adapter unboundedly.
const DefaultMemoryCapacity = 10000

// Memory is the "in-memory" adapter class: it keeps the most recent
// spans in a bounded ring buffer and supports querying by
// instrumentation name, the shape a test harness needs for replay-mode
// assertions.
type Memory struct {
	mu       sync.Mutex
	capacity int
	spans    []*cleanspan.CleanSpan
}

// NewMemory builds a Memory adapter with the given capacity; a
// non-positive capacity falls back to DefaultMemoryCapacity.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{capacity: capacity}
}

func (m *Memory) Name() string { return string(export.ClassInMemory) }

func (m *Memory) ExportSpans(ctx context.Context, spans []*cleanspan.CleanSpan) export.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spans = append(m.spans, spans...)
	if over := len(m.spans) - m.capacity; over > 0 {
		m.spans = m.spans[over:]
	}
	return export.OK()
}

func (m *Memory) Shutdown(ctx context.Context) export.Result { return export.OK() }

// All returns a snapshot of every span currently retained.
func (m *Memory) All() []*cleanspan.CleanSpan {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*cleanspan.CleanSpan, len(m.spans))
	copy(out, m.spans)
	return out
}

// ByInstrumentationName returns a snapshot filtered to spans whose
// InstrumentationName matches name.
func (m *Memory) ByInstrumentationName(name string) []*cleanspan.CleanSpan {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*cleanspan.CleanSpan
	for _, s := range m.spans {
		if s.InstrumentationName == name {
			out = append(out, s)
		}
	}
	return out
}
