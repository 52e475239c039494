// Package export implements the Batch Processor + Exporter and defines
// the Adapter contract that concrete adapters (filesystem, in-memory,
// callback — see the adapter subpackage) satisfy.
package export

import (
	"context"

	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/cleanspan"
)

// ResultStatus is an adapter call's outcome.
type ResultStatus string

const (
	StatusOK     ResultStatus = "OK"
	StatusFailed ResultStatus = "FAILED"
)

// Result is what an Adapter's ExportSpans/Shutdown returns.
type Result struct {
	Status ResultStatus
	Err    error
}

// OK builds a successful Result.
func OK() Result { return Result{Status: StatusOK} }

// Failed builds a failed Result carrying err.
func Failed(err error) Result { return Result{Status: StatusFailed, Err: err} }

// Adapter is the export-sink contract.
type Adapter interface {
	Name() string
	ExportSpans(ctx context.Context, spans []*cleanspan.CleanSpan) Result
	Shutdown(ctx context.Context) Result
}

// AdapterClass distinguishes the two non-RECORD-eligible adapter names
// (in-memory, callback) from everything else, per the active-adapter
// policy in Processor.activeAdapters (processor.go).
type AdapterClass string

const (
	ClassInMemory AdapterClass = "in-memory"
	ClassCallback AdapterClass = "callback"
)
