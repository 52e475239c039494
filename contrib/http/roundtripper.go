// Package http is the reference driver: inbound server instrumentation
// (Middleware) and outbound client instrumentation (WrapRoundTripper),
// both built on net/http's own extension points the same way the
// teacher's contrib/net/http does it.
//
// Grounded directly on
// willnorris-imageproxy/vendor/gopkg.in/DataDog/dd-trace-go.v1/contrib/net/http/roundtripper.go:
// RoundTrip wraps the request in a span, injects trace headers, tags
// method/url/status, and finishes the span with the call's error. This
// file keeps the span-wrapping shape and swaps dd-trace-go's
// ddtrace.Tracer calls for driftsdk's CreateSpan/HandleRecordMode/
// HandleReplayMode; it adds no trace headers to outbound requests.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Use-Tusk/tusk-drift-go-sdk/driftsdk"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/mode"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/tdcontext"
)

type roundTripper struct {
	base http.RoundTripper
	inst *driftsdk.Instance
}

type outboundValue struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

type outboundResult struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
}

func headerMap(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	m := make(map[string]string, len(h))
	for k := range h {
		m[k] = h.Get(k)
	}
	return m
}

// RoundTrip instruments one outbound request: in RECORD mode the real
// call executes and its result is recorded; in REPLAY mode the call is
// skipped entirely and a previously recorded response is substituted
// by the Mock Resolver.
func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt.inst == nil || rt.inst.Mode() == mode.Disabled || skipInstrumentation(req.Header) {
		return rt.base.RoundTrip(req)
	}

	var bodyBytes []byte
	if req.Body != nil {
		bodyBytes, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}
	inVal, _ := json.Marshal(outboundValue{
		Method:  req.Method,
		URL:     req.URL.String(),
		Headers: headerMap(req.Header),
		Body:    string(bodyBytes),
	})

	opts := tdcontext.StartSpanOptions{
		Name:                "http.request",
		PackageName:         "net/http",
		InstrumentationName: "contrib/http",
		PackageType:         tdcontext.PackageHTTP,
		Kind:                tdcontext.KindClient,
		InputValue:          string(inVal),
	}

	if rt.inst.Mode() == mode.Replay {
		ctx, resp, found, err := rt.inst.HandleReplayMode(req.Context(), opts)
		if err != nil {
			return nil, err
		}
		if !found {
			// MockNotFound: raise to the caller, the default driver
			// policy, rather than silently calling out.
			return nil, errMockNotFound{method: req.Method, url: req.URL.String()}
		}
		var out outboundResult
		if err := json.Unmarshal([]byte(resp.OutputValue), &out); err != nil {
			return nil, err
		}
		return buildResponse(req.WithContext(ctx), out), nil
	}

	var res *http.Response
	_, _, err := rt.inst.HandleRecordMode(req.Context(), opts, func(ctx context.Context) (string, error) {
		var rtErr error
		res, rtErr = rt.base.RoundTrip(req.WithContext(ctx))
		if rtErr != nil {
			return "", rtErr
		}
		respBytes, _ := io.ReadAll(res.Body)
		res.Body.Close()
		res.Body = io.NopCloser(bytes.NewReader(respBytes))
		out, _ := json.Marshal(outboundResult{
			StatusCode: res.StatusCode,
			Headers:    headerMap(res.Header),
			Body:       string(respBytes),
		})
		return string(out), responseError(res)
	})
	if err != nil && res == nil {
		return nil, err
	}
	return res, nil
}

func responseError(res *http.Response) error {
	if res.StatusCode/100 == 5 {
		return fmt.Errorf("contrib/http: upstream returned %s", res.Status)
	}
	return nil
}

func buildResponse(req *http.Request, out outboundResult) *http.Response {
	header := http.Header{}
	for k, v := range out.Headers {
		header.Set(k, v)
	}
	return &http.Response{
		StatusCode: out.StatusCode,
		Status:     http.StatusText(out.StatusCode),
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader([]byte(out.Body))),
		Request:    req,
	}
}

// WrapRoundTripper returns a RoundTripper that traces all requests sent
// over base, following dd-trace-go's httptrace.WrapRoundTripper shape.
func WrapRoundTripper(base http.RoundTripper, inst *driftsdk.Instance) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &roundTripper{base: base, inst: inst}
}

// WrapClient instruments c's transport in place and returns c.
func WrapClient(c *http.Client, inst *driftsdk.Instance) *http.Client {
	c.Transport = WrapRoundTripper(c.Transport, inst)
	return c
}

type errMockNotFound struct {
	method string
	url    string
}

func (e errMockNotFound) Error() string {
	return "contrib/http: no recorded mock for " + e.method + " " + e.url
}
