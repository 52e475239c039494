package tdcontext

import (
	"context"

	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/blocking"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/ddlog"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/idgen"
)

// value is the logically-immutable bag of per-trace keys carried on the
// context: activeSpan, spanKind, isPreAppStart, replayTraceId,
// callingLibrary, stopRecordingChildSpans. A derivation never mutates an
// existing value; it builds a new one and stores it under a private key
// in a derived context.Context, so the parent context.Context (and
// whatever the caller holds a reference to) is left untouched — the
// previous scope is restored for free once the derived context goes out
// of scope, with no explicit restore call needed.
type value struct {
	activeSpan              *Span
	spanKind                Kind
	isPreAppStart           bool
	replayTraceID           idgen.TraceID
	callingLibrary          string
	stopRecordingChildSpans bool
}

type ctxKey struct{}

func load(ctx context.Context) value {
	v, _ := ctx.Value(ctxKey{}).(value)
	return v
}

func store(ctx context.Context, v value) context.Context {
	return context.WithValue(ctx, ctxKey{}, v)
}

// ActiveSpan returns the span that is active in ctx, or nil.
func ActiveSpan(ctx context.Context) *Span {
	return load(ctx).activeSpan
}

// ReplayTraceID returns the replay trace id bound to ctx, if any.
func ReplayTraceID(ctx context.Context) (idgen.TraceID, bool) {
	v := load(ctx)
	return v.replayTraceID, !v.replayTraceID.IsZero()
}

// WithReplayTraceID binds a replay trace id (inbound x-td-trace-id) onto
// a derived context.
func WithReplayTraceID(ctx context.Context, id idgen.TraceID) context.Context {
	v := load(ctx)
	v.replayTraceID = id
	return store(ctx, v)
}

// CallingLibrary returns the calling-library marker bound to ctx.
func CallingLibrary(ctx context.Context) string {
	return load(ctx).callingLibrary
}

// WithCallingLibrary binds the name of the library that is about to make
// a call, used so the core can tell its own outbound calls (made while
// talking to the CLI transport) apart from user code's.
func WithCallingLibrary(ctx context.Context, lib string) context.Context {
	v := load(ctx)
	v.callingLibrary = lib
	return store(ctx, v)
}

// StopRecordingChildSpans reports whether ctx suppresses child span
// creation, e.g. for the SDK's own outbound calls.
func StopRecordingChildSpans(ctx context.Context) bool {
	return load(ctx).stopRecordingChildSpans
}

// WithStopRecordingChildSpans marks ctx (and its descendants) as not
// eligible for further span creation.
func WithStopRecordingChildSpans(ctx context.Context, stop bool) context.Context {
	v := load(ctx)
	v.stopRecordingChildSpans = stop
	return store(ctx, v)
}

// TraceInfo is the minimal trace/span identification surface
// GetTraceInfo exposes for log correlation.
type TraceInfo struct {
	TraceID idgen.TraceID
	SpanID  idgen.SpanID
	IsSet   bool
}

// GetTraceInfo reports the active span's ids, for attaching to log lines.
func GetTraceInfo(ctx context.Context) TraceInfo {
	s := ActiveSpan(ctx)
	if s == nil {
		return TraceInfo{}
	}
	return TraceInfo{TraceID: s.TraceID(), SpanID: s.ID(), IsSet: true}
}

// Starter creates spans against a shared Trace Blocking Manager. One
// Starter is created per running SDK instance (see driftsdk.Instance).
type Starter struct {
	Blocking *blocking.Manager
}

// StartSpan creates a span against a parent context. It consults the
// Trace Blocking Manager with the parent's trace id
// (or the freshly minted one, for a root span) and returns a nil *Span
// sentinel — never an error — if the trace is blocked or the parent
// context has stopped recording children. The returned context.Context
// carries the new span as active; the caller's original ctx is
// untouched.
func (s *Starter) StartSpan(ctx context.Context, opts StartSpanOptions) (*Span, context.Context) {
	parent := ActiveSpan(ctx)

	if parent != nil && StopRecordingChildSpans(ctx) {
		return sentinel, ctx
	}

	var traceID idgen.TraceID
	var parentID idgen.SpanID
	isRoot := parent == nil || opts.Kind == KindServer

	switch {
	case parent != nil:
		traceID = parent.TraceID()
		parentID = parent.ID()
	default:
		if rt, ok := ReplayTraceID(ctx); ok {
			traceID = rt
		} else {
			traceID = idgen.NewTraceID()
		}
	}

	if s.Blocking != nil && s.Blocking.IsBlocked(traceID) {
		return sentinel, ctx
	}

	span := newSpan(idgen.NewSpanID(), traceID, parentID, opts, isRoot)

	v := load(ctx)
	v.activeSpan = span
	v.spanKind = opts.Kind
	v.isPreAppStart = opts.IsPreAppStart
	if opts.StopRecordingChildSpans {
		v.stopRecordingChildSpans = true
	}
	return span, store(ctx, v)
}

// WithSpan starts span (already created by StartSpan), runs fn with a
// context.Context that has it active, and always ends the span
// afterward with an ERROR status if fn returned one.
func (s *Starter) WithSpan(ctx context.Context, span *Span, fn func(context.Context) error) error {
	derived := ctx
	if span != nil {
		v := load(ctx)
		v.activeSpan = span
		derived = store(ctx, v)
	}
	err := fn(derived)
	if span != nil {
		if err != nil {
			span.Finish(ErrorStatus(err))
		} else {
			span.Finish()
		}
	}
	return err
}

// EndSpan ends span, optionally overriding its status. Safe on nil.
func EndSpan(span *Span, status ...Status) {
	span.Finish(status...)
}

// AddAttributes merges attrs onto span. Safe on nil.
func AddAttributes(span *Span, attrs map[AttrName]string) {
	span.AddAttributes(attrs)
}

// warnAndDrop logs a RECORD-mode failure: SDK internal errors are
// logged and never propagated to user code in RECORD.
func warnAndDrop(op string, err error) {
	if err != nil {
		ddlog.Warn("tdcontext: %s failed: %v", op, err)
	}
}
