package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/Use-Tusk/tusk-drift-go-sdk/driftsdk"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/ddlog"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/idgen"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/mode"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/tdcontext"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/transformengine"

	"github.com/Use-Tusk/tusk-drift-go-sdk/contrib/envutil"
)

type inboundValue struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Query   string            `json:"query,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

type responseCapture struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *responseCapture) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseCapture) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Middleware wraps next with inbound server-span instrumentation: it
// reads the x-td-trace-id / x-td-env-vars / x-td-skip-instrumentation
// headers, runs the Transform Engine's inbound rules
// before recording the request body, and — in REPLAY mode — ships the
// finished span back to the CLI as an inbound replay span for diffing.
func Middleware(inst *driftsdk.Instance, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inst == nil || inst.Mode() == mode.Disabled || skipInstrumentation(r.Header) {
			next.ServeHTTP(w, r)
			return
		}

		if inst.Mode() == mode.Replay {
			raw := r.Header.Get(HeaderTraceID)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			traceID, ok := idgen.ParseTraceID(raw)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := tdcontext.WithReplayTraceID(r.Context(), traceID)
			r = r.WithContext(ctx)

			if envVars, err := parseEnvVars(r.Header); err != nil {
				ddlog.Warn("%v", err)
			} else if len(envVars) > 0 {
				envutil.Default().Set(traceID.String(), envVars)
				defer envutil.Default().Clear(traceID.String())
			}
		}

		var bodyBytes []byte
		if r.Body != nil {
			bodyBytes, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		call := transformengine.Call{
			Direction:    transformengine.DirectionInbound,
			Method:       r.Method,
			Host:         r.Host,
			Path:         r.URL.Path,
			Headers:      headerMap(r.Header),
			RawQuery:     r.URL.RawQuery,
			Body:         bodyBytes,
			BodyIsBase64: false,
		}
		if eng := inst.Engine(); eng != nil {
			if drop, _ := eng.ShouldDropInboundRequest(call); drop {
				next.ServeHTTP(w, r)
				return
			}
			result := eng.Apply(call)
			call = result.Call
		}

		inVal, _ := json.Marshal(inboundValue{
			Method:  call.Method,
			Path:    call.Path,
			Query:   call.RawQuery,
			Headers: call.Headers,
			Body:    string(call.Body),
		})

		opts := tdcontext.StartSpanOptions{
			Name:                r.Method + " " + r.URL.Path,
			PackageName:         "net/http",
			InstrumentationName: "contrib/http",
			PackageType:         tdcontext.PackageHTTP,
			Kind:                tdcontext.KindServer,
			InputValue:          string(inVal),
		}

		rec := &responseCapture{ResponseWriter: w}
		span, spanCtx := inst.CreateSpan(r.Context(), opts)
		next.ServeHTTP(rec, r.WithContext(spanCtx))

		if span == nil {
			return
		}
		outVal, _ := json.Marshal(struct {
			StatusCode int    `json:"statusCode"`
			Body       string `json:"body,omitempty"`
		}{StatusCode: rec.status, Body: rec.body.String()})
		span.SetAttr(tdcontext.AttrOutputValue, string(outVal))
		if rec.status/100 == 5 {
			span.SetStatus(tdcontext.Status{Error: true, Message: r.URL.Path})
		}
		tdcontext.EndSpan(span)
		inst.EnqueueSpan(span)

		if inst.Mode() == mode.Replay {
			inst.SendInboundSpanForReplay(span)
		}
	})
}
