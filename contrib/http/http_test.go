package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Use-Tusk/tusk-drift-go-sdk/contrib/envutil"
	"github.com/Use-Tusk/tusk-drift-go-sdk/driftsdk"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/idgen"
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

func valueHash(t *testing.T, v any) string {
	t.Helper()
	res, err := schema.GenerateSchemaAndHash(v, nil)
	require.NoError(t, err)
	return res.DecodedValueHash
}

func TestMiddleware_SkipInstrumentationHeaderBypassesSpan(t *testing.T) {
	inst := startInstance(t, mode.Record, nil)
	called := false
	h := Middleware(inst, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderSkipInstrumentation, "true")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.True(t, called)
	inst.Flush()
	assert.Empty(t, inst.MemoryAdapter().All())
}

func TestMiddleware_RecordsInboundSpanOnSuccess(t *testing.T) {
	inst := startInstance(t, mode.Record, nil)
	h := Middleware(inst, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":1}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/widgets", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	inst.Flush()
	spans := inst.MemoryAdapter().All()
	require.Len(t, spans, 1)
	assert.Equal(t, "OK", spans[0].Status.Status)
}

func TestMiddleware_ServerErrorMarksSpanError(t *testing.T) {
	inst := startInstance(t, mode.Record, nil)
	h := Middleware(inst, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	inst.Flush()
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	// The span is marked ERROR, so the processor drops it and blocks its
	// trace: nothing reaches the in-memory adapter.
	assert.Empty(t, inst.MemoryAdapter().All())
}

func TestMiddleware_ReplayModeWithoutTraceIDHeaderPassesThrough(t *testing.T) {
	inst := startInstance(t, mode.Replay, nil)
	called := false
	h := Middleware(inst, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/no-trace", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_ReplaySetsEnvVarsFromHeaderAndClearsAfter(t *testing.T) {
	inst := startInstance(t, mode.Replay, nil)
	traceID := idgen.NewTraceID()

	var seen string
	h := Middleware(inst, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = envutil.Getenv(r.Context(), "FEATURE_FLAG")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/env", nil)
	req.Header.Set(HeaderTraceID, traceID.String())
	req.Header.Set(HeaderEnvVars, `{"FEATURE_FLAG":"on"}`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "on", seen)
	_, ok := envutil.Default().Get(traceID.String(), "FEATURE_FLAG")
	assert.False(t, ok, "env vars must be cleared once the request ends")
}

func TestRoundTripper_RecordModeCapturesRealResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	inst := startInstance(t, mode.Record, nil)
	client := WrapClient(&http.Client{}, inst)

	resp, err := client.Get(upstream.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, `{"ok":true}`, string(body))

	inst.Flush()
	assert.Len(t, inst.MemoryAdapter().All(), 1)
}

func TestRoundTripper_ReplayModeNeverCallsRealServerAndReturnsMockedResponse(t *testing.T) {
	realServerCalled := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		realServerCalled = true
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	req, _ := http.NewRequest(http.MethodGet, upstream.URL+"/thing", nil)
	inputValue := outboundValue{Method: req.Method, URL: req.URL.String()}
	var decoded map[string]any
	raw, _ := json.Marshal(inputValue)
	json.Unmarshal(raw, &decoded)

	store := mock.NewStore()
	store.LoadGlobal([]*mock.StoredSpan{{
		InputValueHash: valueHash(t, decoded),
		OutputValue:    `{"statusCode":200,"body":"mocked"}`,
		Timestamp:      time.Unix(1, 0),
	}})
	inst := startInstance(t, mode.Replay, store)
	client := WrapClient(&http.Client{}, inst)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.False(t, realServerCalled, "REPLAY mode must never invoke the real upstream")
	assert.Equal(t, "mocked", string(body))
}

func TestRoundTripper_ReplayModeMockNotFoundReturnsError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	inst := startInstance(t, mode.Replay, nil)
	client := WrapClient(&http.Client{}, inst)

	_, err := client.Get(upstream.URL + "/unmocked")
	assert.Error(t, err)
}

func TestParseEnvVars_RejectsMalformedJSON(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderEnvVars, "not-json")
	_, err := parseEnvVars(h)
	assert.Error(t, err)
}

func TestParseEnvVars_EmptyHeaderReturnsNil(t *testing.T) {
	h := http.Header{}
	m, err := parseEnvVars(h)
	require.NoError(t, err)
	assert.Nil(t, m)
}
