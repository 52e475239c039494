package adapter

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/cleanspan"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/export"
)

func span(traceID, instName string) *cleanspan.CleanSpan {
	return &cleanspan.CleanSpan{TraceID: traceID, SpanID: "s1", InstrumentationName: instName}
}

func TestMemory_ExportAndQuery(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	res := m.ExportSpans(ctx, []*cleanspan.CleanSpan{span("t1", "http"), span("t1", "postgres")})
	require.Equal(t, export.StatusOK, res.Status)

	assert.Len(t, m.All(), 2)
	assert.Len(t, m.ByInstrumentationName("http"), 1)
	assert.Empty(t, m.ByInstrumentationName("redis"))
}

func TestMemory_RingBufferDropsOldestOnOverflow(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()

	m.ExportSpans(ctx, []*cleanspan.CleanSpan{span("t1", "a")})
	m.ExportSpans(ctx, []*cleanspan.CleanSpan{span("t2", "b")})
	m.ExportSpans(ctx, []*cleanspan.CleanSpan{span("t3", "c")})

	all := m.All()
	require.Len(t, all, 2)
	assert.Equal(t, "t2", all[0].TraceID)
	assert.Equal(t, "t3", all[1].TraceID)
}

func TestCallback_InvokesUserFunction(t *testing.T) {
	var got []*cleanspan.CleanSpan
	cb := NewCallback(func(spans []*cleanspan.CleanSpan) error {
		got = spans
		return nil
	})

	res := cb.ExportSpans(context.Background(), []*cleanspan.CleanSpan{span("t1", "http")})
	require.Equal(t, export.StatusOK, res.Status)
	assert.Len(t, got, 1)
}

func TestCallback_RecoversFromPanic(t *testing.T) {
	cb := NewCallback(func(spans []*cleanspan.CleanSpan) error {
		panic("boom")
	})

	var res export.Result
	assert.NotPanics(t, func() {
		res = cb.ExportSpans(context.Background(), []*cleanspan.CleanSpan{span("t1", "http")})
	})
	assert.Equal(t, export.StatusFailed, res.Status)
}

func TestCallback_PropagatesError(t *testing.T) {
	cb := NewCallback(func(spans []*cleanspan.CleanSpan) error {
		return assert.AnError
	})

	res := cb.ExportSpans(context.Background(), []*cleanspan.CleanSpan{span("t1", "http")})
	assert.Equal(t, export.StatusFailed, res.Status)
}

func TestFilesystem_WritesOneJSONLFilePerTrace(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFilesystem(dir)
	require.NoError(t, err)

	res := fs.ExportSpans(context.Background(), []*cleanspan.CleanSpan{
		span("trace-a", "http"),
		span("trace-a", "postgres"),
		span("trace-b", "redis"),
	})
	require.Equal(t, export.StatusOK, res.Status)
	require.Equal(t, export.StatusOK, fs.Shutdown(context.Background()).Status)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	for _, e := range entries {
		f, err := os.Open(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		scanner := bufio.NewScanner(f)
		lines := 0
		for scanner.Scan() {
			var decoded map[string]any
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &decoded))
			lines++
		}
		f.Close()
		assert.GreaterOrEqual(t, lines, 1)
	}
}

func TestFilesystem_AppendsToSameTraceFileAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFilesystem(dir)
	require.NoError(t, err)

	require.Equal(t, export.StatusOK, fs.ExportSpans(context.Background(), []*cleanspan.CleanSpan{span("trace-a", "http")}).Status)
	require.Equal(t, export.StatusOK, fs.ExportSpans(context.Background(), []*cleanspan.CleanSpan{span("trace-a", "postgres")}).Status)
	require.Equal(t, export.StatusOK, fs.Shutdown(context.Background()).Status)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "repeat writes to the same trace must append, not create a new file")
}
