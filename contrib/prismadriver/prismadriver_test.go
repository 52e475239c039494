package prismadriver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Use-Tusk/tusk-drift-go-sdk/driftsdk"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/mock"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/mode"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/schema"
)

type fakeExecutor struct {
	called bool
	result interface{}
	err    error
}

func (f *fakeExecutor) Execute(ctx context.Context, model, action string, args interface{}) (interface{}, error) {
	f.called = true
	return f.result, f.err
}

func startInstance(t *testing.T, m mode.Mode, store *mock.Store) *driftsdk.Instance {
	t.Helper()
	if store == nil {
		store = mock.NewStore()
	}
	inst, err := driftsdk.Start(
		func(c *driftsdk.Config) { c.Mode = m },
		driftsdk.WithLocalMockStore(store),
	)
	require.NoError(t, err)
	t.Cleanup(inst.Stop)
	return inst
}

func TestExecute_RecordModeRunsRealExecutorAndRecordsResult(t *testing.T) {
	inst := startInstance(t, mode.Record, nil)
	exec := &fakeExecutor{result: map[string]any{"id": float64(1)}}
	client := New(exec, inst)

	out, err := client.Execute(context.Background(), "User", "findUnique", map[string]any{"id": 1})
	require.NoError(t, err)
	assert.True(t, exec.called)
	assert.Equal(t, map[string]any{"id": float64(1)}, out)

	inst.Flush()
	assert.Len(t, inst.MemoryAdapter().All(), 1)
}

func TestExecute_ReplayModeNeverCallsRealExecutor(t *testing.T) {
	in := map[string]any{
		"model":  "User",
		"action": "findUnique",
		"args":   map[string]any{"id": float64(1)},
	}
	res, err := schema.GenerateSchemaAndHash(in, nil)
	require.NoError(t, err)

	store := mock.NewStore()
	store.LoadGlobal([]*mock.StoredSpan{{
		InputValueHash: res.DecodedValueHash,
		OutputValue:    `{"id":1,"name":"Ann"}`,
		Timestamp:      time.Unix(1, 0),
	}})
	inst := startInstance(t, mode.Replay, store)
	exec := &fakeExecutor{}
	client := New(exec, inst)

	out, err := client.Execute(context.Background(), "User", "findUnique", map[string]any{"id": 1})
	require.NoError(t, err)
	assert.False(t, exec.called, "REPLAY mode must never invoke the real executor")
	assert.Equal(t, map[string]any{"id": float64(1), "name": "Ann"}, out)
}

func TestExecute_ReplayModeNoMatchReturnsError(t *testing.T) {
	inst := startInstance(t, mode.Replay, nil)
	exec := &fakeExecutor{}
	client := New(exec, inst)

	_, err := client.Execute(context.Background(), "User", "findUnique", map[string]any{"id": 999})
	assert.Error(t, err)
	assert.False(t, exec.called)
}

func TestExecute_NilInstancePassesThroughToRealExecutor(t *testing.T) {
	exec := &fakeExecutor{result: "ok"}
	client := New(exec, nil)

	out, err := client.Execute(context.Background(), "User", "findUnique", nil)
	require.NoError(t, err)
	assert.True(t, exec.called)
	assert.Equal(t, "ok", out)
}
