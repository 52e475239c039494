package driftsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/blocking"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/ddlog"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/export"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/export/adapter"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/mock"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/mode"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/schema"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/tdcontext"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/transformengine"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/transport"

	sdkmetrics "github.com/Use-Tusk/tusk-drift-go-sdk/internal/metrics"
)

// DefaultConnectTimeout bounds the CLI handshake.
const DefaultConnectTimeout = 5 * time.Second

// Instance is one running SDK: the wired-together span core, batch
// processor, CLI transport (or local mock store, for tests), and
// transform engine. Exactly one is expected per process; Start returns
// it and also stores it as the package-level default used by the
// driver-facing package functions below.
type Instance struct {
	cfg      Config
	mode     mode.Mode
	starter  *tdcontext.Starter
	blocking *blocking.Manager
	processor *export.Processor
	engine   *transformengine.Engine
	metrics  *sdkmetrics.Registry

	conn          *transport.Conn // nil when using a local resolver, or DISABLED
	localResolver *mock.Resolver  // set only when the WithLocalMockStore option is given
	memoryAdapter *adapter.Memory
	sweeperStop   chan struct{}

	ready atomic.Bool
}

var (
	defaultMu   sync.Mutex
	defaultInst *Instance
)

// Start builds and wires an Instance per the resolved Config, dials
// the CLI transport if RECORD/REPLAY mode requires one, and stores the
// instance as the package default. A second call to Start replaces the
// default after stopping the previous instance's background loop.
func Start(opts ...Option) (*Instance, error) {
	cfg := resolveConfig(opts...)
	ddlog.SetLevel(cfg.LogLevel)

	engine, err := transformengine.New(cfg.Transforms)
	if err != nil {
		return nil, fmt.Errorf("driftsdk: compile transforms: %w", err)
	}

	blockingMgr := blocking.New(blocking.DefaultRetention)
	sweeperStop := make(chan struct{})
	blockingMgr.RunSweeper(time.Hour, sweeperStop)

	m := sdkmetrics.New()
	memAdapter := adapter.NewMemory(adapter.DefaultMemoryCapacity)
	adapters := []export.Adapter{memAdapter}
	if cfg.Mode == mode.Record && cfg.FilesystemDir != "" {
		fsAdapter, err := adapter.NewFilesystem(cfg.FilesystemDir)
		if err != nil {
			return nil, fmt.Errorf("driftsdk: filesystem adapter: %w", err)
		}
		adapters = append(adapters, fsAdapter)
	}

	processor := export.NewProcessor(export.Config{
		Adapters: adapters,
		Blocking: blockingMgr,
		Mode:     cfg.Mode,
		Metrics:  m,
	})
	processor.Start()

	inst := &Instance{
		cfg:           cfg,
		mode:          cfg.Mode,
		starter:       &tdcontext.Starter{Blocking: blockingMgr},
		blocking:      blockingMgr,
		processor:     processor,
		engine:        engine,
		metrics:       m,
		memoryAdapter: memAdapter,
		localResolver: cfg.localResolver,
		sweeperStop:   sweeperStop,
	}

	if inst.localResolver == nil && cfg.Mode != mode.Disabled {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultConnectTimeout)
		defer cancel()
		conn, err := transport.Dial(ctx, transport.Options{
			SocketPath: cfg.SocketPath,
			Host:       cfg.Host,
			Port:       cfg.Port,
			SDKMode:    string(cfg.Mode),
			Metrics:    m,
		})
		if err != nil {
			if cfg.Mode == mode.Replay {
				processor.Stop()
				return nil, fmt.Errorf("driftsdk: CLI connect required in REPLAY mode: %w", err)
			}
			ddlog.Warn("driftsdk: CLI connect failed, continuing without transport: %v", err)
			inst.mode = mode.Disabled
		} else {
			inst.conn = conn
		}
	}

	defaultMu.Lock()
	if defaultInst != nil {
		defaultInst.Stop()
	}
	defaultInst = inst
	defaultMu.Unlock()

	return inst, nil
}

// Stop flushes and tears down the instance: processor drain, CLI
// transport close.
func (i *Instance) Stop() {
	if i == nil {
		return
	}
	select {
	case <-i.sweeperStop:
		return // already stopped
	default:
	}
	i.processor.Stop()
	if i.conn != nil {
		i.conn.Close()
	}
	close(i.sweeperStop)
}

// Stop tears down the package-level default instance, if any.
func Stop() {
	defaultMu.Lock()
	inst := defaultInst
	defaultInst = nil
	defaultMu.Unlock()
	inst.Stop()
}

// MarkAppReady flips the readiness flag drivers consult to tag spans
// created before the host application finished booting
// (StartSpanOptions.IsPreAppStart).
func (i *Instance) MarkAppReady() { i.ready.Store(true) }

// AppReady reports whether MarkAppReady has been called.
func (i *Instance) AppReady() bool { return i.ready.Load() }

// Mode returns the instance's effective operating mode.
func (i *Instance) Mode() mode.Mode { return i.mode }

// Engine exposes the compiled Transform Engine so drivers can run
// redact/mask/replace/drop rules over request/response data before
// attaching it to a span. It is a standalone filter consumed by
// drivers rather than something the core pipeline applies implicitly.
func (i *Instance) Engine() *transformengine.Engine { return i.engine }

// EnqueueSpan hands a finished span to the batch processor. Drivers
// that build their own request/response capture instead of using
// HandleRecordMode/HandleReplayMode (e.g. contrib/http's inbound
// middleware, which needs the raw http.ResponseWriter) call this
// directly once the span is ended.
func (i *Instance) EnqueueSpan(span *tdcontext.Span) { i.processor.Enqueue(span) }

// MemoryAdapter exposes the always-on in-memory export sink, used by
// test harnesses to assert on exported spans without a filesystem or
// CLI round trip.
func (i *Instance) MemoryAdapter() *adapter.Memory { return i.memoryAdapter }

// Flush forces an immediate synchronous export of everything currently
// queued, giving tests a deterministic way to assert on exported spans
// without sleeping.
func (i *Instance) Flush() { i.processor.Flush() }

// CreateSpan starts a span via the shared Starter, applying the
// parent-span gating rule: a non-SERVER span with no live ancestor and
// the app already marked ready is a no-op (returns
// the sentinel nil-safe span), since an untraceable background
// operation has nothing to attach a trace id to. Sampling is decided
// here too, for SERVER spans in RECORD mode only: a SERVER span that
// falls outside Config.SamplingRate is returned as the sentinel.
func (i *Instance) CreateSpan(ctx context.Context, opts tdcontext.StartSpanOptions) (*tdcontext.Span, context.Context) {
	if opts.Kind == tdcontext.KindServer && i.mode == mode.Record &&
		i.cfg.SamplingRate < 1 && rand.Float64() >= i.cfg.SamplingRate {
		return nil, ctx
	}
	if opts.Kind != tdcontext.KindServer && tdcontext.ActiveSpan(ctx) == nil {
		opts.IsPreAppStart = opts.IsPreAppStart || !i.AppReady()
		if i.AppReady() {
			return nil, ctx
		}
	}
	return i.starter.StartSpan(ctx, opts)
}

// HandleRecordMode implements the RECORD side of the
// create-span/run-call/attach-output contract: create the span, run the
// real call, attach its output, end the span, and enqueue it for
// export. call's error becomes the span's ERROR status but is always
// also returned to the caller unchanged.
func (i *Instance) HandleRecordMode(ctx context.Context, opts tdcontext.StartSpanOptions, call func(context.Context) (string, error)) (context.Context, string, error) {
	span, spanCtx := i.CreateSpan(ctx, opts)
	output, err := call(spanCtx)
	if span == nil {
		return spanCtx, output, err
	}
	span.SetAttr(tdcontext.AttrOutputValue, output)
	if err != nil {
		span.SetStatus(tdcontext.ErrorStatus(err))
	}
	tdcontext.EndSpan(span)
	i.processor.Enqueue(span)
	return spanCtx, output, err
}

// HandleReplayMode implements the REPLAY side: create the span, resolve
// a mock for it instead of running a real call, attach the mocked
// output (or an error if none was found), end the span, and enqueue it.
// It returns whether a mock was found so the driver can apply its own
// MockNotFound policy.
func (i *Instance) HandleReplayMode(ctx context.Context, opts tdcontext.StartSpanOptions) (spanCtx context.Context, resp *transport.GetMockResponse, found bool, err error) {
	span, spanCtx := i.CreateSpan(ctx, opts)
	if span == nil {
		return spanCtx, nil, false, nil
	}
	resp, found, err = i.FindMockResponse(spanCtx, span)
	if err != nil {
		span.SetStatus(tdcontext.ErrorStatus(err))
	} else if found {
		span.SetAttr(tdcontext.AttrOutputValue, resp.OutputValue)
	}
	tdcontext.EndSpan(span)
	i.processor.Enqueue(span)
	return spanCtx, resp, found, err
}

// FindMockResponse resolves a mock response synchronously: it blocks
// (bounded by ctx) until the CLI (or, in tests, the local resolver)
// answers.
func (i *Instance) FindMockResponse(ctx context.Context, span *tdcontext.Span) (*transport.GetMockResponse, bool, error) {
	var v any
	if raw := span.Attr(tdcontext.AttrInputValue); raw != "" {
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, false, fmt.Errorf("driftsdk: bad input value JSON: %w", err)
		}
	}
	merges, err := decodeMerges(span.Attr(tdcontext.AttrInputSchemaMerges))
	if err != nil {
		return nil, false, err
	}
	res, err := schema.GenerateSchemaAndHash(v, merges)
	if err != nil {
		return nil, false, fmt.Errorf("driftsdk: schema generation: %w", err)
	}

	traceID := span.TraceID().String()
	if rt, ok := tdcontext.ReplayTraceID(ctx); ok {
		traceID = rt.String()
	}

	if i.conn != nil {
		req := transport.GetMockRequest{
			TraceID:             traceID,
			SpanID:              span.ID().String(),
			PackageName:         span.Attr(tdcontext.AttrPackageName),
			InstrumentationName: span.Attr(tdcontext.AttrInstrumentationName),
			InputValueHash:      res.DecodedValueHash,
			InputSchemaHash:     res.DecodedSchemaHash,
		}
		resp, err := i.conn.RequestMock(ctx, req)
		if err != nil {
			return nil, false, err
		}
		return resp, resp.Found, nil
	}

	if i.localResolver != nil {
		match, tier := i.localResolver.Resolve(mock.Request{
			PackageName:     span.Attr(tdcontext.AttrPackageName),
			InputValueHash:  res.DecodedValueHash,
			InputSchemaHash: res.DecodedSchemaHash,
		}, traceID)
		if match == nil {
			return &transport.GetMockResponse{Found: false}, false, nil
		}
		return &transport.GetMockResponse{
			Found:        true,
			OutputValue:  match.OutputValue,
			OutputSchema: match.OutputSchema,
			MatchedTier:  int(tier),
		}, true, nil
	}

	return nil, false, fmt.Errorf("driftsdk: no mock source configured (neither CLI transport nor local resolver)")
}

// MockFuture is the async findMockResponse variant: it lets a driver
// kick off the resolution and do other prep work before collecting the
// result, instead of blocking immediately.
type MockFuture struct {
	ch chan mockFutureResult
}

type mockFutureResult struct {
	resp  *transport.GetMockResponse
	found bool
	err   error
}

// FindMockResponseAsync starts resolving in the background and returns
// a future the driver can Wait on later.
func (i *Instance) FindMockResponseAsync(ctx context.Context, span *tdcontext.Span) *MockFuture {
	f := &MockFuture{ch: make(chan mockFutureResult, 1)}
	go func() {
		resp, found, err := i.FindMockResponse(ctx, span)
		f.ch <- mockFutureResult{resp: resp, found: found, err: err}
	}()
	return f
}

// Wait blocks until the future resolves or ctx is done.
func (f *MockFuture) Wait(ctx context.Context) (*transport.GetMockResponse, bool, error) {
	select {
	case r := <-f.ch:
		return r.resp, r.found, r.err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func decodeMerges(raw string) (schema.Merges, error) {
	if raw == "" {
		return nil, nil
	}
	var wire map[string]struct {
		Encoding        string   `json:"encoding,omitempty"`
		DecodedType     string   `json:"decodedType,omitempty"`
		MatchImportance *float64 `json:"matchImportance,omitempty"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("driftsdk: bad input schema merges JSON: %w", err)
	}
	merges := make(schema.Merges, len(wire))
	for k, w := range wire {
		merges[k] = schema.Merge{
			Encoding:        schema.Encoding(w.Encoding),
			DecodedType:     schema.DecodedType(w.DecodedType),
			MatchImportance: w.MatchImportance,
		}
	}
	return merges, nil
}

// SendInboundSpanForReplay ships span to the CLI for replay-mode
// diffing bookkeeping: inbound spans are still emitted during REPLAY so
// the CLI can compare them against the original recording. A no-op if
// there is no live CLI connection.
func (i *Instance) SendInboundSpanForReplay(span *tdcontext.Span) {
	if i.conn == nil || span == nil {
		return
	}
	payload, err := json.Marshal(span.Attrs())
	if err != nil {
		ddlog.Warn("driftsdk: marshal inbound replay span: %v", err)
		return
	}
	i.conn.SendInboundSpanForReplay(transport.SendInboundSpanForReplayRequest{
		TraceID: span.TraceID().String(),
		SpanID:  span.ID().String(),
		Span:    payload,
	})
}

// package-level convenience wrappers over the default instance, for
// drivers that don't want to thread an *Instance through every call
// site (mirrors testtracer.go's package-level Start/Stop/StartSpan).

func defaultInstance() *Instance {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultInst
}

// Active reports the package-level default instance, or nil if Start
// has not been called.
func Active() *Instance { return defaultInstance() }
