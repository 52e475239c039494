package cleanspan

import (
	"encoding/json"
	"time"

	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/ddlog"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/schema"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/tdcontext"
)

// mergeWire is the JSON wire shape of a schema.Merge, used to decode the
// INPUT_SCHEMA_MERGES / OUTPUT_SCHEMA_MERGES attribute strings.
type mergeWire struct {
	Encoding        string   `json:"encoding,omitempty"`
	DecodedType     string   `json:"decodedType,omitempty"`
	MatchImportance *float64 `json:"matchImportance,omitempty"`
}

func parseMerges(raw string) (schema.Merges, error) {
	if raw == "" {
		return nil, nil
	}
	var wire map[string]mergeWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, err
	}
	merges := make(schema.Merges, len(wire))
	for k, m := range wire {
		merges[k] = schema.Merge{
			Encoding:        schema.Encoding(m.Encoding),
			DecodedType:     schema.DecodedType(m.DecodedType),
			MatchImportance: m.MatchImportance,
		}
	}
	return merges, nil
}

func parseJSONValue(raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func toTimestamp(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Transform turns a raw attribute bag plus a finishing timestamp into a
// CleanSpan. It never panics; on a parse failure it logs and reports
// ok=false so the caller drops the span, classifying it as a
// schema/parse error.
func Transform(span *tdcontext.Span) (out *CleanSpan, ok bool) {
	if span == nil {
		return nil, false
	}

	inputValueRaw := span.Attr(tdcontext.AttrInputValue)
	outputValueRaw := span.Attr(tdcontext.AttrOutputValue)
	inputMergesRaw := span.Attr(tdcontext.AttrInputSchemaMerges)
	outputMergesRaw := span.Attr(tdcontext.AttrOutputSchemaMerges)
	metadataRaw := span.Attr(tdcontext.AttrMetadata)
	transformMetaRaw := span.Attr(tdcontext.AttrTransformMetadata)

	inputMerges, err := parseMerges(inputMergesRaw)
	if err != nil {
		ddlog.Warn("cleanspan: dropping span %s: bad input schema merges: %v", span.ID(), err)
		return nil, false
	}
	outputMerges, err := parseMerges(outputMergesRaw)
	if err != nil {
		ddlog.Warn("cleanspan: dropping span %s: bad output schema merges: %v", span.ID(), err)
		return nil, false
	}

	inputParsed, err := parseJSONValue(inputValueRaw)
	if err != nil {
		ddlog.Warn("cleanspan: dropping span %s: bad input value JSON: %v", span.ID(), err)
		return nil, false
	}
	outputParsed, err := parseJSONValue(outputValueRaw)
	if err != nil {
		ddlog.Warn("cleanspan: dropping span %s: bad output value JSON: %v", span.ID(), err)
		return nil, false
	}

	c := &CleanSpan{
		TraceID: span.TraceID().String(),
		SpanID:  span.ID().String(),

		Name:                span.Attr(tdcontext.AttrName_),
		PackageName:         span.Attr(tdcontext.AttrPackageName),
		InstrumentationName: span.Attr(tdcontext.AttrInstrumentationName),
		SubmoduleName:       span.Attr(tdcontext.AttrSubmoduleName),
		PackageType:         span.Attr(tdcontext.AttrPackageType),

		Kind: string(span.Kind()),

		IsRootSpan:    span.IsRoot(),
		IsPreAppStart: span.Attr(tdcontext.AttrIsPreAppStart) == "true",

		Timestamp: toTimestamp(span.Start()),
		Duration:  Timestamp{Seconds: int64(span.Duration() / time.Second), Nanos: int32(span.Duration() % time.Second)},
	}

	if !span.ParentID().IsZero() {
		c.ParentSpanID = span.ParentID().String()
	}

	if inputValueRaw != "" {
		res, err := schema.GenerateSchemaAndHash(inputParsed, inputMerges)
		if err != nil {
			ddlog.Warn("cleanspan: dropping span %s: input schema generation failed: %v", span.ID(), err)
			return nil, false
		}
		c.InputValue = res.DecodedValue
		c.InputSchema = res.Schema
		c.InputValueHash = res.DecodedValueHash
		c.InputSchemaHash = res.DecodedSchemaHash
	}
	if outputValueRaw != "" {
		res, err := schema.GenerateSchemaAndHash(outputParsed, outputMerges)
		if err != nil {
			ddlog.Warn("cleanspan: dropping span %s: output schema generation failed: %v", span.ID(), err)
			return nil, false
		}
		c.OutputValue = res.DecodedValue
		c.OutputSchema = res.Schema
		c.OutputValueHash = res.DecodedValueHash
		c.OutputSchemaHash = res.DecodedSchemaHash
	}

	st := span.Status()
	if st.Error {
		c.Status = Status{Status: "ERROR", Message: st.Message}
	} else {
		c.Status = Status{Status: "OK"}
	}

	if metadataRaw != "" {
		md, err := parseJSONValue(metadataRaw)
		if err != nil {
			ddlog.Warn("cleanspan: dropping span %s: bad metadata JSON: %v", span.ID(), err)
			return nil, false
		}
		c.Metadata = md
	}
	if transformMetaRaw != "" {
		var tm TransformMetadata
		if err := json.Unmarshal([]byte(transformMetaRaw), &tm); err != nil {
			ddlog.Warn("cleanspan: dropping span %s: bad transform metadata JSON: %v", span.ID(), err)
			return nil, false
		}
		c.TransformMetadata = &tm
	}

	return c, true
}
