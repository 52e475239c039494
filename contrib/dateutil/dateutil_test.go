package dateutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/idgen"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/tdcontext"
)

func TestTracker_NowReturnsObservedTimestamp(t *testing.T) {
	tr := NewTracker()
	ts := time.Unix(1700000000, 0)
	tr.Observe("trace-1", ts)

	got, ok := tr.Now("trace-1")
	assert.True(t, ok)
	assert.True(t, ts.Equal(got))
}

func TestTracker_NowReturnsFalseWhenUnobserved(t *testing.T) {
	tr := NewTracker()
	_, ok := tr.Now("trace-none")
	assert.False(t, ok)
}

func TestTracker_ClearRemovesObservation(t *testing.T) {
	tr := NewTracker()
	tr.Observe("trace-1", time.Unix(1, 0))
	tr.Clear("trace-1")

	_, ok := tr.Now("trace-1")
	assert.False(t, ok)
}

func TestNow_UsesReplayTrackerWhenReplayTraceActive(t *testing.T) {
	traceID := idgen.NewTraceID()
	ts := time.Unix(1650000000, 0)
	Default().Observe(traceID.String(), ts)
	t.Cleanup(func() { Default().Clear(traceID.String()) })

	ctx := tdcontext.WithReplayTraceID(context.Background(), traceID)
	assert.True(t, ts.Equal(Now(ctx)))
}

func TestNow_FallsBackToRealClockWithoutReplayTrace(t *testing.T) {
	before := time.Now()
	got := Now(context.Background())
	after := time.Now()

	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}
