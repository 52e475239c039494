package tdcontext

import (
	"sync"
	"time"

	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/idgen"
)

// LibraryName identifies this SDK as the originator of a span. Export
// filtering compares against this: a span is only exported when its
// originating library is the SDK's own tracer.
const LibraryName = "tusk-drift-go-sdk"

// Span is a timed record of one operation. It is mutable until Finish is
// called, after which every mutating method is a no-op, a "finished"
// guard protecting against races between late mutation and a
// concurrent flush.
type Span struct {
	mu sync.Mutex

	id       idgen.SpanID
	traceID  idgen.TraceID
	parentID idgen.SpanID // zero means root

	kind    Kind
	library string

	attrs  map[AttrName]string
	status Status

	start time.Time
	end   time.Time

	finished bool

	isRootSpan   bool
	isPreAppStart bool
}

// sentinel is returned by StartSpan when the trace is blocked or the
// enclosing context has stopRecordingChildSpans set; all its methods are
// safe no-ops, the same nil-span contract dd-trace-go's
// ddtrace/tracer/span_test.go exercises via TestNilSpan.
var sentinel *Span

// StartSpanOptions carries everything a driver supplies when starting a
// span: the attribute bag plus the non-attribute fields (kind,
// isPreAppStart, stopRecordingChildSpans).
type StartSpanOptions struct {
	Name                 string
	PackageName          string
	SubmoduleName        string
	InstrumentationName  string
	PackageType          PackageType
	Kind                 Kind
	InputValue           string // pre-serialized JSON
	OutputValue          string // pre-serialized JSON, may be set later via AddAttributes
	InputSchemaMerges    string // pre-serialized JSON
	OutputSchemaMerges   string
	Metadata             string
	IsPreAppStart        bool
	StopRecordingChildSpans bool
}

func newSpan(id idgen.SpanID, traceID idgen.TraceID, parentID idgen.SpanID, opts StartSpanOptions, isRoot bool) *Span {
	s := &Span{
		id:            id,
		traceID:       traceID,
		parentID:      parentID,
		kind:          opts.Kind,
		library:       LibraryName,
		attrs:         make(map[AttrName]string, 8),
		status:        OKStatus,
		start:         time.Now(),
		isRootSpan:    isRoot,
		isPreAppStart: opts.IsPreAppStart,
	}
	set := func(k AttrName, v string) {
		if v != "" {
			s.attrs[k] = v
		}
	}
	set(AttrName_, opts.Name)
	set(AttrPackageName, opts.PackageName)
	set(AttrSubmoduleName, opts.SubmoduleName)
	set(AttrInstrumentationName, opts.InstrumentationName)
	set(AttrPackageType, string(opts.PackageType))
	set(AttrInputValue, opts.InputValue)
	set(AttrOutputValue, opts.OutputValue)
	set(AttrInputSchemaMerges, opts.InputSchemaMerges)
	set(AttrOutputSchemaMerges, opts.OutputSchemaMerges)
	set(AttrMetadata, opts.Metadata)
	return s
}

// ID returns the span's own id.
func (s *Span) ID() idgen.SpanID {
	if s == nil {
		return idgen.ZeroSpanID
	}
	return s.id
}

// TraceID returns the trace this span belongs to.
func (s *Span) TraceID() idgen.TraceID {
	if s == nil {
		return idgen.ZeroTraceID
	}
	return s.traceID
}

// ParentID returns the parent span id, or the zero SpanID for a root span.
func (s *Span) ParentID() idgen.SpanID {
	if s == nil {
		return idgen.ZeroSpanID
	}
	return s.parentID
}

// Kind returns the span's kind.
func (s *Span) Kind() Kind {
	if s == nil {
		return ""
	}
	return s.kind
}

// IsRoot reports whether this span has no parent or is a SERVER span.
func (s *Span) IsRoot() bool {
	return s != nil && s.isRootSpan
}

// SetAttr adds or overwrites a single attribute. No-op once finished or
// on a nil span.
func (s *Span) SetAttr(k AttrName, v string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if s.attrs == nil {
		s.attrs = make(map[AttrName]string)
	}
	s.attrs[k] = v
}

// AddAttributes merges attrs into the span's bag. No-op once finished.
func (s *Span) AddAttributes(attrs map[AttrName]string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if s.attrs == nil {
		s.attrs = make(map[AttrName]string, len(attrs))
	}
	for k, v := range attrs {
		s.attrs[k] = v
	}
}

// Attr reads a single attribute.
func (s *Span) Attr(k AttrName) string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attrs[k]
}

// Attrs returns a copy of the full attribute bag.
func (s *Span) Attrs() map[AttrName]string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[AttrName]string, len(s.attrs))
	for k, v := range s.attrs {
		out[k] = v
	}
	return out
}

// SetStatus sets the span's completion status. No-op once finished.
func (s *Span) SetStatus(st Status) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.status = st
}

// Status returns the span's current status.
func (s *Span) Status() Status {
	if s == nil {
		return OKStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start returns the span's start time.
func (s *Span) Start() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.start
}

// End returns the span's end time, or the zero Time if not yet finished.
func (s *Span) End() time.Time {
	if s == nil {
		return time.Time{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.end
}

// Duration returns the span's duration, zero if not yet finished.
func (s *Span) Duration() time.Duration {
	end := s.End()
	if end.IsZero() {
		return 0
	}
	return end.Sub(s.Start())
}

// Finished reports whether Finish has already run.
func (s *Span) Finished() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Library reports the instrumentation library that produced this span.
func (s *Span) Library() string {
	if s == nil {
		return ""
	}
	return s.library
}

// Finish ends the span. Idempotent: a second call is a no-op.
func (s *Span) Finish(status ...Status) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if len(status) > 0 {
		s.status = status[0]
	}
	s.end = time.Now()
	s.finished = true
}
