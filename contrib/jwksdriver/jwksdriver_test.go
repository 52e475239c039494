package jwksdriver

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

const sampleJWKS = `{"keys":[{"kty":"oct","k":"c2VjcmV0","kid":"key-1"}]}`

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

func TestFetch_ReplayModeReconstructsSetWithoutNetworkCall(t *testing.T) {
	url := "https://issuer.example.com/.well-known/jwks.json"
	res, err := schema.GenerateSchemaAndHash(map[string]any{"url": url}, nil)
	require.NoError(t, err)

	store := mock.NewStore()
	store.LoadGlobal([]*mock.StoredSpan{{
		InputValueHash: res.DecodedValueHash,
		OutputValue:    sampleJWKS,
		Timestamp:      time.Unix(1, 0),
	}})
	inst := startInstance(t, mode.Replay, store)

	set, err := Fetch(context.Background(), inst, url)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
	key, ok := set.LookupKeyID("key-1")
	require.True(t, ok)
	assert.Equal(t, "key-1", key.KeyID())
}

func TestFetch_ReplayModeNoMatchReturnsError(t *testing.T) {
	inst := startInstance(t, mode.Replay, nil)

	_, err := Fetch(context.Background(), inst, "https://unmatched.example.com/jwks.json")
	assert.Error(t, err)
}
