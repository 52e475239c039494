package transformengine

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/cleanspan"
)

// Call is the subset of a request/response the engine can see and
// mutate: headers, query string, path, and body. Outbound bodies are
// carried as raw bytes that may be base64-encoded (binary-safe wire
// transport); inbound bodies are plain JSON text.
type Call struct {
	Direction Direction
	Method    string
	Host      string
	Path      string

	Headers  map[string]string
	RawQuery string
	Body     []byte
	BodyIsBase64 bool
}

// Engine applies a compiled rule set to calls.
type Engine struct {
	rules []compiledRule
}

// New compiles rules into a ready Engine.
func New(rules []Rule) (*Engine, error) {
	compiled, err := Compile(rules)
	if err != nil {
		return nil, err
	}
	return &Engine{rules: compiled}, nil
}

func methodMatches(pattern, method string) bool {
	return pattern == "" || strings.EqualFold(pattern, method)
}

func (cr compiledRule) matches(c Call) bool {
	if cr.Matcher.Direction != DirectionBoth && cr.Matcher.Direction != c.Direction {
		return false
	}
	if !methodMatches(cr.Matcher.Method, c.Method) {
		return false
	}
	if cr.hostRe != nil && !cr.hostRe.MatchString(c.Host) {
		return false
	}
	if cr.pathRe != nil && !cr.pathRe.MatchString(c.Path) {
		return false
	}
	return true
}

// jsonPathToDotted converts a JSONPath expression of the restricted
// "$.a.b.c" shape this engine supports into gjson/sjson's dotted-path
// syntax; full JSONPath (wildcards, filters, slices) is out of scope.
func jsonPathToDotted(p string) string {
	p = strings.TrimPrefix(p, "$.")
	p = strings.TrimPrefix(p, "$")
	return p
}

// ShouldDropInboundRequest reports whether an inbound call matches a
// drop rule whose target is the whole body, which prevents span
// creation entirely rather than merely clearing a value after the
// fact.
func (e *Engine) ShouldDropInboundRequest(c Call) (bool, *cleanspan.DropInfo) {
	if c.Direction != DirectionInbound {
		return false, nil
	}
	for _, cr := range e.rules {
		if cr.Action.Type != ActionDrop || cr.target != TargetFullBody {
			continue
		}
		if cr.matches(c) {
			return true, &cleanspan.DropInfo{Reason: cr.Action.Reason}
		}
	}
	return false, nil
}

// Result is the outcome of applying the engine to one Call.
type Result struct {
	Call    Call
	Actions []cleanspan.TransformAction
}

// Apply runs every matching rule against c in order, mutating a copy
// and recording what happened. Callers should check
// ShouldDropInboundRequest first for inbound calls, since a full-body
// inbound drop is handled before a span (and therefore any
// TransformMetadata) exists.
func (e *Engine) Apply(c Call) Result {
	headers := make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		headers[k] = v
	}
	out := c
	out.Headers = headers

	var actions []cleanspan.TransformAction
	for _, cr := range e.rules {
		if !cr.matches(out) {
			continue
		}
		var transformed bool
		switch cr.target {
		case TargetJSONPath:
			transformed = e.applyJSONPath(&out, cr)
		case TargetQueryParam:
			transformed = e.applyQueryParam(&out, cr)
		case TargetHeaderName:
			transformed = e.applyHeader(&out, cr)
		case TargetURLPath:
			transformed = e.applyURLPath(&out, cr)
		case TargetFullBody:
			transformed = e.applyFullBody(&out, cr)
		}
		if transformed {
			actions = append(actions, cleanspan.TransformAction{
				Type:        string(cr.Action.Type),
				Field:       string(cr.target),
				Reason:      cr.Action.Reason,
				Description: cr.Name,
				Transformed: true,
			})
		}
	}
	return Result{Call: out, Actions: actions}
}

func applyScalar(action Action, current string, exists bool) (string, bool, bool) {
	// returns (newValue, remove, transformed)
	if !exists {
		return "", false, false
	}
	switch action.Type {
	case ActionRedact:
		return redactValue(action.Placeholder, current), false, true
	case ActionReplace:
		return action.Placeholder, false, true
	case ActionMask:
		return maskValue(current, action.KeepSuffix), false, true
	case ActionDrop:
		return "", true, true
	default:
		return current, false, false
	}
}

// redactValue builds the value-derived redaction: prefix plus the first
// 12 hex characters of the value's SHA-256 digest, so the same input
// always redacts to the same output without ever exposing the value
// itself.
func redactValue(prefix, value string) string {
	sum := sha256.Sum256([]byte(value))
	return prefix + hex.EncodeToString(sum[:])[:12] + "..."
}

func maskValue(v string, keepSuffix int) string {
	if keepSuffix < 0 {
		keepSuffix = 0
	}
	if keepSuffix >= len(v) {
		return v
	}
	masked := strings.Repeat("*", len(v)-keepSuffix)
	return masked + v[len(v)-keepSuffix:]
}

func (e *Engine) applyJSONPath(c *Call, cr compiledRule) bool {
	if len(c.Body) == 0 {
		return false
	}
	path := jsonPathToDotted(cr.Matcher.JSONPath)
	res := gjson.GetBytes(c.Body, path)
	if !res.Exists() {
		return false
	}
	newVal, remove, transformed := applyScalar(cr.Action, res.String(), true)
	if !transformed {
		return false
	}
	var (
		updated []byte
		err     error
	)
	if remove {
		updated, err = sjson.DeleteBytes(c.Body, path)
	} else {
		updated, err = sjson.SetBytes(c.Body, path, newVal)
	}
	if err != nil {
		return false
	}
	c.Body = updated
	return true
}

func (e *Engine) applyQueryParam(c *Call, cr compiledRule) bool {
	q, err := url.ParseQuery(c.RawQuery)
	if err != nil {
		return false
	}
	current := q.Get(cr.Matcher.QueryParam)
	if current == "" && !q.Has(cr.Matcher.QueryParam) {
		return false
	}
	newVal, remove, transformed := applyScalar(cr.Action, current, true)
	if !transformed {
		return false
	}
	if remove {
		q.Del(cr.Matcher.QueryParam)
	} else {
		q.Set(cr.Matcher.QueryParam, newVal)
	}
	c.RawQuery = q.Encode()
	return true
}

func (e *Engine) applyHeader(c *Call, cr compiledRule) bool {
	current, exists := c.Headers[cr.Matcher.HeaderName]
	newVal, remove, transformed := applyScalar(cr.Action, current, exists)
	if !transformed {
		return false
	}
	if remove {
		delete(c.Headers, cr.Matcher.HeaderName)
	} else {
		c.Headers[cr.Matcher.HeaderName] = newVal
	}
	return true
}

func (e *Engine) applyURLPath(c *Call, cr compiledRule) bool {
	newVal, remove, transformed := applyScalar(cr.Action, c.Path, true)
	if !transformed {
		return false
	}
	if remove {
		c.Path = "/"
	} else {
		c.Path = newVal
	}
	return true
}

// applyFullBody handles the whole-body target for actions other than
// a pre-creation inbound drop (which ShouldDropInboundRequest already
// intercepts): a body flagged BodyIsBase64 is decoded, transformed as
// text and re-encoded (if it does not decode, the base64 text itself is
// transformed); other bodies are transformed as plain text.
func (e *Engine) applyFullBody(c *Call, cr compiledRule) bool {
	if len(c.Body) == 0 {
		return false
	}
	raw := string(c.Body)
	if c.BodyIsBase64 {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err == nil {
			raw = string(decoded)
		}
	}
	newVal, remove, transformed := applyScalar(cr.Action, raw, true)
	if !transformed {
		return false
	}
	if remove {
		c.Body = nil
		return true
	}
	if c.BodyIsBase64 {
		newVal = base64.StdEncoding.EncodeToString([]byte(newVal))
	}
	c.Body = []byte(newVal)
	return true
}
