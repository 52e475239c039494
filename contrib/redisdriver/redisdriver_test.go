package redisdriver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Use-Tusk/tusk-drift-go-sdk/driftsdk"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/mock"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/mode"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/schema"
)

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

func TestProcessHook_RecordModeRunsRealCommandAndRecordsSpan(t *testing.T) {
	inst := startInstance(t, mode.Record, nil)
	h := &hook{inst: inst}
	cmd := redis.NewStatusCmd(context.Background(), "PING")

	invoked := false
	next := func(ctx context.Context, c redis.Cmder) error {
		invoked = true
		c.(*redis.StatusCmd).SetVal("PONG")
		return nil
	}

	err := h.ProcessHook(next)(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, invoked)

	inst.Flush()
	assert.Len(t, inst.MemoryAdapter().All(), 1)
}

func TestProcessHook_ReplayModeNeverCallsNext(t *testing.T) {
	cmd := redis.NewStatusCmd(context.Background(), "GET", "foo")
	in := cmdInput{Command: cmd.Name(), Args: cmd.Args()}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	res, err := schema.GenerateSchemaAndHash(decoded, nil)
	require.NoError(t, err)

	store := mock.NewStore()
	store.LoadGlobal([]*mock.StoredSpan{{
		InputValueHash: res.DecodedValueHash,
		OutputValue:    `{"result":"mocked-value"}`,
		Timestamp:      time.Unix(1, 0),
	}})
	inst := startInstance(t, mode.Replay, store)
	h := &hook{inst: inst}

	invoked := false
	next := func(ctx context.Context, c redis.Cmder) error {
		invoked = true
		return nil
	}

	err = h.ProcessHook(next)(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, invoked, "REPLAY mode must never invoke the real command")
	assert.NoError(t, cmd.Err())
}

func TestProcessHook_ReplayModeRecordedErrorIsSetOnCommand(t *testing.T) {
	cmd := redis.NewStatusCmd(context.Background(), "GET", "missing")
	in := cmdInput{Command: cmd.Name(), Args: cmd.Args()}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	res, err := schema.GenerateSchemaAndHash(decoded, nil)
	require.NoError(t, err)

	store := mock.NewStore()
	store.LoadGlobal([]*mock.StoredSpan{{
		InputValueHash: res.DecodedValueHash,
		OutputValue:    `{"error":"redis: nil"}`,
		Timestamp:      time.Unix(1, 0),
	}})
	inst := startInstance(t, mode.Replay, store)
	h := &hook{inst: inst}

	next := func(ctx context.Context, c redis.Cmder) error { return nil }
	err = h.ProcessHook(next)(context.Background(), cmd)
	require.NoError(t, err)
	require.Error(t, cmd.Err())
	assert.Equal(t, "redis: nil", cmd.Err().Error())
}

func TestProcessHook_ReplayModeNoMatchReturnsError(t *testing.T) {
	inst := startInstance(t, mode.Replay, nil)
	h := &hook{inst: inst}
	cmd := redis.NewStatusCmd(context.Background(), "GET", "unmocked")

	next := func(ctx context.Context, c redis.Cmder) error { return nil }
	err := h.ProcessHook(next)(context.Background(), cmd)
	assert.Error(t, err)
}

func TestProcessHook_NilInstancePassesThrough(t *testing.T) {
	h := &hook{inst: nil}
	cmd := redis.NewStatusCmd(context.Background(), "PING")

	invoked := false
	next := func(ctx context.Context, c redis.Cmder) error {
		invoked = true
		return nil
	}
	err := h.ProcessHook(next)(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, invoked)
}

func TestProcessPipelineHook_ReplayModeBypassesInstrumentationAndCallsNext(t *testing.T) {
	inst := startInstance(t, mode.Replay, nil)
	h := &hook{inst: inst}
	cmds := []redis.Cmder{redis.NewStatusCmd(context.Background(), "PING")}

	invoked := false
	next := func(ctx context.Context, c []redis.Cmder) error {
		invoked = true
		return nil
	}
	err := h.ProcessPipelineHook(next)(context.Background(), cmds)
	require.NoError(t, err)
	assert.True(t, invoked, "pipeline replay substitution is out of scope, real pipeline always runs")
}

func TestProcessPipelineHook_RecordModeInstrumentsAndCallsNext(t *testing.T) {
	inst := startInstance(t, mode.Record, nil)
	h := &hook{inst: inst}
	cmds := []redis.Cmder{
		redis.NewStatusCmd(context.Background(), "PING"),
		redis.NewStatusCmd(context.Background(), "PING"),
	}

	invoked := false
	next := func(ctx context.Context, c []redis.Cmder) error {
		invoked = true
		return nil
	}
	err := h.ProcessPipelineHook(next)(context.Background(), cmds)
	require.NoError(t, err)
	assert.True(t, invoked)

	inst.Flush()
	assert.Len(t, inst.MemoryAdapter().All(), 1)
}

func TestNewClient_InstallsHook(t *testing.T) {
	inst := startInstance(t, mode.Disabled, nil)
	c := NewClient(&redis.Options{Addr: "127.0.0.1:0"}, inst)
	t.Cleanup(func() { c.Close() })
	assert.NotNil(t, c)
}
