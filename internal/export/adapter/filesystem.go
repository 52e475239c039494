// Package adapter provides the concrete export.Adapter implementations:
// filesystem (JSONL-per-trace), in-memory (bounded ring buffer), and
// callback (user-supplied function). The filesystem/in-memory split
// mirrors dd-trace-go's logTraceWriter/agentTraceWriter in
// ddtrace/tracer/writer.go — two sinks behind the same interface; here
// one writes files and the other keeps spans in process memory.
package adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/cleanspan"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/ddlog"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/export"
)

// Filesystem writes one JSONL file per trace id under Dir, named
// "{isoTimestamp}_trace_{traceId}.jsonl" the first time that trace is
// seen. File handles are opened lazily and kept open for
// the adapter's lifetime so repeat writes to the same trace append
// rather than re-create.
type Filesystem struct {
	Dir string

	mu    sync.Mutex
	files map[string]*os.File
}

// NewFilesystem creates dir (including parents) if it does not exist
// and returns a ready-to-use Filesystem adapter.
func NewFilesystem(dir string) (*Filesystem, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("adapter: create filesystem dir: %w", err)
	}
	return &Filesystem{Dir: dir, files: make(map[string]*os.File)}, nil
}

func (f *Filesystem) Name() string { return "filesystem" }

func (f *Filesystem) fileFor(traceID string) (*os.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fh, ok := f.files[traceID]; ok {
		return fh, nil
	}
	name := fmt.Sprintf("%s_trace_%s.jsonl", time.Now().UTC().Format(time.RFC3339), traceID)
	fh, err := os.OpenFile(filepath.Join(f.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	f.files[traceID] = fh
	return fh, nil
}

// ExportSpans appends each span to its trace's JSONL file, looking up
// (or lazily opening) the trace's file handle once per span.
func (f *Filesystem) ExportSpans(ctx context.Context, spans []*cleanspan.CleanSpan) export.Result {
	var firstErr error
	for _, s := range spans {
		if ctx.Err() != nil {
			return export.Failed(ctx.Err())
		}
		fh, err := f.fileFor(s.TraceID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			ddlog.Warn("adapter/filesystem: open trace %s: %v", s.TraceID, err)
			continue
		}
		line, err := s.MarshalJSONLine()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if _, err := fh.Write(line); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return export.Failed(firstErr)
	}
	return export.OK()
}

// Shutdown closes every open trace file.
func (f *Filesystem) Shutdown(ctx context.Context) export.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	var firstErr error
	for id, fh := range f.files {
		if err := fh.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(f.files, id)
	}
	if firstErr != nil {
		return export.Failed(firstErr)
	}
	return export.OK()
}
