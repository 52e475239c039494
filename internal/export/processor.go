package export

import (
	"context"
	"sync"
	"time"

	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/blocking"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/cleanspan"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/ddlog"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/metrics"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/mode"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/tdcontext"
)

const (
	// DefaultCapacity is the bounded FIFO's default size.
	DefaultCapacity = 2048
	// DefaultBatchSize is the max spans per exported batch.
	DefaultBatchSize = 512
	// DefaultFlushInterval is how often a partial batch is flushed.
	DefaultFlushInterval = 2000 * time.Millisecond
	// DefaultExportTimeout bounds a single adapter call per batch.
	DefaultExportTimeout = 30 * time.Second
	// maxTraceSize is the combined input+output size (plus the fixed
	// 50KiB estimation overhead) above which a trace is blocked.
	maxTraceSize = 1024 * 1024
	sizeOverhead = 50 * 1024
)

// Processor is the Batch Processor + Exporter.
type Processor struct {
	mu    sync.Mutex
	queue []*tdcontext.Span

	capacity      int
	batchSize     int
	flushInterval time.Duration
	exportTimeout time.Duration

	adapters []Adapter
	blocking *blocking.Manager
	mode     mode.Mode
	metrics  *metrics.Registry

	flushNow chan struct{}
	stop     chan struct{}
	done     chan struct{}
}

// Config configures a new Processor; zero values fall back to the
// spec-mandated defaults.
type Config struct {
	Capacity      int
	BatchSize     int
	FlushInterval time.Duration
	ExportTimeout time.Duration
	Adapters      []Adapter
	Blocking      *blocking.Manager
	Mode          mode.Mode
	Metrics       *metrics.Registry
}

// NewProcessor builds a Processor from cfg.
func NewProcessor(cfg Config) *Processor {
	p := &Processor{
		capacity:      cfg.Capacity,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		exportTimeout: cfg.ExportTimeout,
		adapters:      cfg.Adapters,
		blocking:      cfg.Blocking,
		mode:          cfg.Mode,
		metrics:       cfg.Metrics,
		flushNow:      make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	if p.capacity <= 0 {
		p.capacity = DefaultCapacity
	}
	if p.batchSize <= 0 {
		p.batchSize = DefaultBatchSize
	}
	if p.flushInterval <= 0 {
		p.flushInterval = DefaultFlushInterval
	}
	if p.exportTimeout <= 0 {
		p.exportTimeout = DefaultExportTimeout
	}
	if p.metrics == nil {
		p.metrics = metrics.New()
	}
	return p
}

// Start runs the timed flush loop in a background goroutine until Stop
// is called. Enqueue itself never blocks the hot path.
func (p *Processor) Start() {
	go p.loop()
}

func (p *Processor) loop() {
	defer close(p.done)
	t := time.NewTicker(p.flushInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			p.flushOnce(context.Background())
		case <-p.flushNow:
			p.flushOnce(context.Background())
		case <-p.stop:
			// drain whatever remains before exiting.
			for p.queueLen() > 0 {
				p.flushOnce(context.Background())
			}
			return
		}
	}
}

// Stop flushes remaining spans and terminates the background loop.
func (p *Processor) Stop() {
	close(p.stop)
	<-p.done
}

func (p *Processor) queueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Enqueue adds a finished span to the FIFO. If this would exceed
// capacity, the oldest unsent batch-size chunk is dropped and a warning
// is logged.
func (p *Processor) Enqueue(span *tdcontext.Span) {
	if span == nil {
		return
	}
	p.mu.Lock()
	p.queue = append(p.queue, span)
	if len(p.queue) > p.capacity {
		drop := p.batchSize
		if drop > len(p.queue) {
			drop = len(p.queue)
		}
		p.queue = p.queue[drop:]
		ddlog.Warn("export: queue capacity %d exceeded, dropped oldest %d spans", p.capacity, drop)
		p.metrics.SpansDropped.WithLabelValues("queue_overflow").Add(float64(drop))
	}
	full := len(p.queue) >= p.batchSize
	p.metrics.QueueDepth.Set(float64(len(p.queue)))
	p.mu.Unlock()

	if full {
		select {
		case p.flushNow <- struct{}{}:
		default:
		}
	}
}

func (p *Processor) takeBatch() []*tdcontext.Span {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.batchSize
	if n > len(p.queue) {
		n = len(p.queue)
	}
	if n == 0 {
		return nil
	}
	batch := p.queue[:n]
	p.queue = p.queue[n:]
	p.metrics.QueueDepth.Set(float64(len(p.queue)))
	return batch
}

// flushOnce drains up to one batch, filters and transforms each span,
// and exports the survivors.
func (p *Processor) flushOnce(ctx context.Context) {
	batch := p.takeBatch()
	if len(batch) == 0 {
		return
	}
	start := time.Now()

	clean := make([]*cleanspan.CleanSpan, 0, len(batch))
	for _, span := range batch {
		if span.Library() != tdcontext.LibraryName {
			p.metrics.SpansDropped.WithLabelValues("foreign_library").Inc()
			continue
		}
		traceID := span.TraceID()
		if p.blocking != nil && p.blocking.IsBlocked(traceID) {
			p.metrics.SpansDropped.WithLabelValues("trace_blocked").Inc()
			continue
		}
		if span.Kind() == tdcontext.KindServer && span.Status().Error {
			if p.blocking != nil {
				p.blocking.BlockTrace(traceID)
			}
			p.metrics.BlockedTraces.Inc()
			p.metrics.SpansDropped.WithLabelValues("server_error").Inc()
			continue
		}
		if p.estimatedSize(span) > maxTraceSize {
			if p.blocking != nil {
				p.blocking.BlockTrace(traceID)
			}
			p.metrics.BlockedTraces.Inc()
			p.metrics.SpansDropped.WithLabelValues("size_limit").Inc()
			ddlog.Warn("export: span %s exceeds 1MiB, blocking trace %s", span.ID(), traceID)
			continue
		}
		cs, ok := cleanspan.Transform(span)
		if !ok {
			p.metrics.SpansDropped.WithLabelValues("parse_failure").Inc()
			continue
		}
		clean = append(clean, cs)
	}

	if len(clean) > 0 {
		p.export(ctx, clean)
	}

	p.metrics.BatchesFlushed.Inc()
	p.metrics.FlushLatency.Observe(time.Since(start).Seconds())
}

func (p *Processor) estimatedSize(span *tdcontext.Span) int {
	in := len(span.Attr(tdcontext.AttrInputValue))
	out := len(span.Attr(tdcontext.AttrOutputValue))
	return in + out + sizeOverhead
}

// activeAdapters applies the active-adapter policy: in RECORD mode
// every adapter runs; otherwise only ones named "in-memory" or
// "callback".
func (p *Processor) activeAdapters() []Adapter {
	if p.mode == mode.Record {
		return p.adapters
	}
	out := make([]Adapter, 0, len(p.adapters))
	for _, a := range p.adapters {
		if a.Name() == string(ClassInMemory) || a.Name() == string(ClassCallback) {
			out = append(out, a)
		}
	}
	return out
}

// export fans batch out to every active adapter concurrently, each
// bounded by exportTimeout.
func (p *Processor) export(ctx context.Context, batch []*cleanspan.CleanSpan) {
	adapters := p.activeAdapters()
	var wg sync.WaitGroup
	for _, a := range adapters {
		wg.Add(1)
		go func(a Adapter) {
			defer wg.Done()
			actx, cancel := context.WithTimeout(ctx, p.exportTimeout)
			defer cancel()
			res := a.ExportSpans(actx, batch)
			if res.Status != StatusOK {
				ddlog.Warn("export: adapter %s failed: %v", a.Name(), res.Err)
				p.metrics.ExportFailures.WithLabelValues(a.Name()).Inc()
			}
		}(a)
	}
	wg.Wait()
}

// Flush forces an immediate synchronous flush of everything currently
// queued, used by tests that need deterministic export timing.
func (p *Processor) Flush() {
	for p.queueLen() > 0 {
		p.flushOnce(context.Background())
	}
}
