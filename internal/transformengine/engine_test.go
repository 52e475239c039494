package transformengine

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_RejectsAmbiguousTarget(t *testing.T) {
	_, err := Compile([]Rule{{
		Name:    "bad",
		Matcher: Matcher{JSONPath: "$.a", QueryParam: "b"},
	}})
	assert.Error(t, err)
}

func TestCompile_RejectsNoTarget(t *testing.T) {
	_, err := Compile([]Rule{{Name: "bad", Matcher: Matcher{}}})
	assert.Error(t, err)
}

func TestCompile_RejectsBadRegexp(t *testing.T) {
	_, err := Compile([]Rule{{
		Name:    "bad",
		Matcher: Matcher{PathPattern: "(", FullBody: true},
	}})
	assert.Error(t, err)
}

func TestApply_RedactsJSONField(t *testing.T) {
	eng, err := New([]Rule{{
		Name: "redact-password",
		Matcher: Matcher{
			Direction: DirectionInbound,
			JSONPath:  "$.password",
		},
		Action: Action{Type: ActionRedact},
	}})
	require.NoError(t, err)

	result := eng.Apply(Call{
		Direction: DirectionInbound,
		Body:      []byte(`{"u":"x","password":"hunter2"}`),
	})

	require.Len(t, result.Actions, 1)
	sum := sha256.Sum256([]byte("hunter2"))
	want := `{"u":"x","password":"REDACTED_` + hex.EncodeToString(sum[:])[:12] + `..."}`
	assert.Equal(t, want, string(result.Call.Body))
}

func TestApply_RedactUsesCustomPrefix(t *testing.T) {
	eng, err := New([]Rule{{
		Name:    "redact-token",
		Matcher: Matcher{Direction: DirectionBoth, HeaderName: "X-Api-Key"},
		Action:  Action{Type: ActionRedact, Placeholder: "HIDDEN_"},
	}})
	require.NoError(t, err)

	result := eng.Apply(Call{
		Direction: DirectionOutbound,
		Headers:   map[string]string{"X-Api-Key": "secret-value"},
	})

	sum := sha256.Sum256([]byte("secret-value"))
	want := "HIDDEN_" + hex.EncodeToString(sum[:])[:12] + "..."
	assert.Equal(t, want, result.Call.Headers["X-Api-Key"])
}

func TestApply_MaskKeepsSuffix(t *testing.T) {
	eng, err := New([]Rule{{
		Name:    "mask-header",
		Matcher: Matcher{Direction: DirectionBoth, HeaderName: "Authorization"},
		Action:  Action{Type: ActionMask, KeepSuffix: 4},
	}})
	require.NoError(t, err)

	result := eng.Apply(Call{
		Direction: DirectionOutbound,
		Headers:   map[string]string{"Authorization": "Bearer abcd1234"},
	})

	assert.Equal(t, "***********1234", result.Call.Headers["Authorization"])
}

func TestApply_DropsQueryParam(t *testing.T) {
	eng, err := New([]Rule{{
		Name:    "drop-token",
		Matcher: Matcher{Direction: DirectionBoth, QueryParam: "token"},
		Action:  Action{Type: ActionDrop},
	}})
	require.NoError(t, err)

	result := eng.Apply(Call{Direction: DirectionOutbound, RawQuery: "token=secret&id=1"})

	assert.Equal(t, "id=1", result.Call.RawQuery)
}

func TestShouldDropInboundRequest_FullBodyDropRule(t *testing.T) {
	eng, err := New([]Rule{{
		Name:    "drop-webhook",
		Matcher: Matcher{Direction: DirectionInbound, PathPattern: "^/webhooks/", FullBody: true},
		Action:  Action{Type: ActionDrop, Reason: "noisy webhook"},
	}})
	require.NoError(t, err)

	drop, info := eng.ShouldDropInboundRequest(Call{Direction: DirectionInbound, Path: "/webhooks/stripe"})
	require.True(t, drop)
	require.NotNil(t, info)
	assert.Equal(t, "noisy webhook", info.Reason)

	drop, _ = eng.ShouldDropInboundRequest(Call{Direction: DirectionInbound, Path: "/other"})
	assert.False(t, drop)
}

func TestShouldDropInboundRequest_IgnoresOutbound(t *testing.T) {
	eng, err := New([]Rule{{
		Name:    "drop-all",
		Matcher: Matcher{Direction: DirectionBoth, FullBody: true},
		Action:  Action{Type: ActionDrop},
	}})
	require.NoError(t, err)

	drop, _ := eng.ShouldDropInboundRequest(Call{Direction: DirectionOutbound})
	assert.False(t, drop, "full-body drop only short-circuits span creation for inbound calls")
}

func TestApply_NoMatchingRuleLeavesCallUnchanged(t *testing.T) {
	eng, err := New([]Rule{{
		Name:    "scoped",
		Matcher: Matcher{Direction: DirectionInbound, Method: "POST", FullBody: true},
		Action:  Action{Type: ActionRedact},
	}})
	require.NoError(t, err)

	call := Call{Direction: DirectionInbound, Method: "GET", Body: []byte(`{"a":1}`)}
	result := eng.Apply(call)

	assert.Empty(t, result.Actions)
	assert.Equal(t, call.Body, result.Call.Body)
}
