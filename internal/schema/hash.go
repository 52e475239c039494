package schema

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
)

// Result is what GenerateSchemaAndHash returns: the inferred schema plus
// deterministic hashes of both the value and its schema, and the
// decoded value itself (post normalization and merge-driven base64/JSON
// decoding) so callers can use it as the span's stored input/output
// value.
type Result struct {
	Schema          *Schema
	DecodedValue    any
	DecodedValueHash string
	DecodedSchemaHash string
}

// GenerateSchemaAndHash runs the five-step algorithm: normalize,
// decode-by-merges, infer, canonicalize, hash.
func GenerateSchemaAndHash(data any, merges Merges) (*Result, error) {
	normalized, err := normalize(data)
	if err != nil {
		return nil, err
	}

	decoded := decodeByMerges(normalized, merges)

	sch := infer(decoded, merges, true)

	valueHash, err := canonicalHash(decoded)
	if err != nil {
		return nil, err
	}
	schemaHash, err := canonicalHash(sch)
	if err != nil {
		return nil, err
	}

	return &Result{
		Schema:            sch,
		DecodedValue:      decoded,
		DecodedValueHash:  valueHash,
		DecodedSchemaHash: schemaHash,
	}, nil
}

// normalize performs the JSON round trip that drops Go-side values with
// no JSON representation (e.g. a struct field tagged json:"-") and folds
// time.Time/[]byte into their JSON-native forms ahead of the round trip:
// dates stringify to ISO-8601, binary types map to STRING.
func normalize(data any) (any, error) {
	pre := stringifyNonJSONTypes(data)

	buf, err := json.Marshal(pre)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber() // preserves arbitrary-precision integers distinctly from floats
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeByMerges handles the merge-decode step: for every top-level key of
// an object value whose merge specifies encoding=BASE64, decode the
// string; if decodedType=JSON (or unspecified but parseable), further
// parse it as JSON. Any failure keeps the original value for that key.
func decodeByMerges(v any, merges Merges) any {
	if len(merges) == 0 {
		return v
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(obj))
	for k, val := range obj {
		out[k] = val
		merge, ok := merges[k]
		if !ok || merge.Encoding != EncodingBase64 {
			continue
		}
		s, ok := val.(string)
		if !ok {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			continue // keep original value
		}
		if merge.DecodedType == "" || merge.DecodedType == DecodedTypeJSON {
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			var parsed any
			if err := dec.Decode(&parsed); err == nil {
				out[k] = parsed
				continue
			}
			if merge.DecodedType == DecodedTypeJSON {
				// explicitly tagged JSON but it failed to parse: keep original.
				continue
			}
		}
		out[k] = string(raw)
	}
	return out
}

// infer builds a Schema from a normalized/decoded value. Merges apply
// only at the top level, per key of the top-level object.
func infer(v any, merges Merges, topLevel bool) *Schema {
	switch val := v.(type) {
	case nil:
		return &Schema{Kind: KindNull}
	case bool:
		return &Schema{Kind: KindBoolean}
	case json.Number:
		return &Schema{Kind: KindNumber}
	case string:
		return &Schema{Kind: KindString}
	case map[string]any:
		s := NewObjectSchema()
		for k, pv := range val {
			propSchema := infer(pv, nil, false)
			if topLevel {
				if m, ok := merges[k]; ok {
					propSchema.Encoding = m.Encoding
					propSchema.DecodedType = m.DecodedType
					propSchema.MatchImportance = m.MatchImportance
				}
			}
			s.Properties[k] = propSchema
		}
		return s
	case []any:
		s := &Schema{Kind: KindOrderedList}
		if len(val) > 0 {
			s.Items = infer(val[0], nil, false)
		}
		return s
	default:
		return &Schema{Kind: KindUndefined}
	}
}

// canonicalHash serializes v with encoding/json (which sorts map keys
// and preserves fixed struct-field order, giving a recursively
// key-sorted canonical form without extra bookkeeping) and returns the
// hex SHA-256 digest of the result.
func canonicalHash(v any) (string, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}

// stringifyNonJSONTypes recursively replaces Go values encoding/json
// cannot represent in the wanted form (time.Time, []byte) with their
// string forms, ahead of the round trip in normalize.
func stringifyNonJSONTypes(v any) any {
	switch val := v.(type) {
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = stringifyNonJSONTypes(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = stringifyNonJSONTypes(e)
		}
		return out
	default:
		if s, ok := asISO8601(val); ok {
			return s
		}
		return v
	}
}
