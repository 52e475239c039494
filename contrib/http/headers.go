package http

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Header names recognized on the inbound driver contract.
const (
	HeaderTraceID              = "x-td-trace-id"
	HeaderEnvVars               = "x-td-env-vars"
	HeaderSkipInstrumentation   = "x-td-skip-instrumentation"
)

// skipInstrumentation reports the x-td-skip-instrumentation header's
// value, used by the SDK's own outbound calls to opt out of recursive
// tracing.
func skipInstrumentation(h http.Header) bool {
	return h.Get(HeaderSkipInstrumentation) == "true"
}

// parseEnvVars decodes the x-td-env-vars header. Per DESIGN.md's Open
// Question decision, the encoding is strictly JSON object; a malformed
// value is rejected rather than silently ignored.
func parseEnvVars(h http.Header) (map[string]string, error) {
	raw := h.Get(HeaderEnvVars)
	if raw == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("contrib/http: malformed %s header: %w", HeaderEnvVars, err)
	}
	return m, nil
}
