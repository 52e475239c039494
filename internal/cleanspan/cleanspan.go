// Package cleanspan implements the Span Transformer: a pure function
// from a finished raw span to the CleanSpan record adapters actually
// export.
package cleanspan

import (
	"encoding/json"
)

// Timestamp is the {seconds, nanos} pair used for CleanSpan's
// timestamp/duration fields.
type Timestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanos"`
}

// Status mirrors tdcontext.Status at the export boundary so this package
// does not need to import tdcontext just for one small struct.
type Status struct {
	Status  string `json:"status"` // "OK" or "ERROR"
	Message string `json:"message,omitempty"`
}

// TransformAction is one entry the transform engine appends to a span's
// transformMetadata.actions.
type TransformAction struct {
	Type        string `json:"type"`
	Field       string `json:"field"`
	Reason      string `json:"reason"`
	Description string `json:"description,omitempty"`
	Transformed bool   `json:"transformed"`
}

// TransformMetadata records what the Transform Engine did to a span.
type TransformMetadata struct {
	Actions []TransformAction `json:"actions,omitempty"`
	Drop    *DropInfo         `json:"drop,omitempty"`
}

// DropInfo is recorded when a drop rule clears an already-created span's
// values (as opposed to a pre-span drop, which prevents span creation
// and so never produces a CleanSpan at all).
type DropInfo struct {
	Reason string `json:"reason"`
}

// CleanSpan is the record written to every export adapter.
type CleanSpan struct {
	TraceID      string `json:"traceId"`
	SpanID       string `json:"spanId"`
	ParentSpanID string `json:"parentSpanId"`

	Name                 string `json:"name"`
	PackageName          string `json:"packageName"`
	InstrumentationName  string `json:"instrumentationName"`
	SubmoduleName        string `json:"submoduleName"`
	PackageType          string `json:"packageType"`

	Kind string `json:"kind"`

	InputValue  any `json:"inputValue,omitempty"`
	OutputValue any `json:"outputValue,omitempty"`

	InputSchema  any `json:"inputSchema,omitempty"`
	OutputSchema any `json:"outputSchema,omitempty"`

	InputValueHash   string `json:"inputValueHash,omitempty"`
	OutputValueHash  string `json:"outputValueHash,omitempty"`
	InputSchemaHash  string `json:"inputSchemaHash,omitempty"`
	OutputSchemaHash string `json:"outputSchemaHash,omitempty"`

	Status Status `json:"status"`

	Timestamp Timestamp `json:"timestamp"`
	Duration  Timestamp `json:"duration"`

	IsRootSpan    bool `json:"isRootSpan"`
	IsPreAppStart bool `json:"isPreAppStart"`

	Metadata          any                `json:"metadata,omitempty"`
	TransformMetadata *TransformMetadata `json:"transformMetadata,omitempty"`

	// IsUsed is mock-matching bookkeeping, transient and never exported.
	// Deliberately excluded from the JSON form.
	IsUsed bool `json:"-"`
}

// MarshalJSONLine renders the span as a single JSON line with a stable
// key order (struct field order is fixed), which the Filesystem
// adapter relies on.
func (c *CleanSpan) MarshalJSONLine() ([]byte, error) {
	buf, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return append(buf, '\n'), nil
}
