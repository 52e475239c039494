package envutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/idgen"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/tdcontext"
)

func TestTracker_GetenvUsesOverrideForActiveReplayTrace(t *testing.T) {
	tr := NewTracker()
	traceID := idgen.NewTraceID()
	tr.Set(traceID.String(), map[string]string{"FOO": "bar"})

	ctx := tdcontext.WithReplayTraceID(context.Background(), traceID)
	assert.Equal(t, "bar", tr.Getenv(ctx, "FOO"))
}

func TestTracker_GetenvFallsBackToProcessEnvWithoutReplayTrace(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_VAR", "real-value")
	tr := NewTracker()

	assert.Equal(t, "real-value", tr.Getenv(context.Background(), "ENVUTIL_TEST_VAR"))
}

func TestTracker_GetenvFallsBackWhenKeyNotOverridden(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_VAR2", "real-value")
	tr := NewTracker()
	traceID := idgen.NewTraceID()
	tr.Set(traceID.String(), map[string]string{"OTHER": "x"})

	ctx := tdcontext.WithReplayTraceID(context.Background(), traceID)
	assert.Equal(t, "real-value", tr.Getenv(ctx, "ENVUTIL_TEST_VAR2"))
}

func TestTracker_ClearRemovesOverrides(t *testing.T) {
	tr := NewTracker()
	traceID := idgen.NewTraceID()
	tr.Set(traceID.String(), map[string]string{"FOO": "bar"})
	tr.Clear(traceID.String())

	_, ok := tr.Get(traceID.String(), "FOO")
	assert.False(t, ok)
}

func TestDefault_IsProcessWideSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}
