// Package schema normalizes a value, decodes any base64/JSON-merge
// tagged fields, infers a JsonSchema from the result, and produces
// deterministic hashes of both the decoded value and its schema.
package schema

// Kind is the primitive/composite type vocabulary.
type Kind string

const (
	KindNumber    Kind = "NUMBER"
	KindString    Kind = "STRING"
	KindBoolean   Kind = "BOOLEAN"
	KindNull      Kind = "NULL"
	KindUndefined Kind = "UNDEFINED"
	KindFunction  Kind = "FUNCTION"
	KindObject    Kind = "OBJECT"
	KindOrderedList   Kind = "ORDERED_LIST"
	KindUnorderedList Kind = "UNORDERED_LIST"
)

// Encoding is a merge-supplied hint about how a string value was encoded.
type Encoding string

const EncodingBase64 Encoding = "BASE64"

// DecodedType is a merge-supplied hint about what a decoded string holds.
type DecodedType string

const (
	DecodedTypeJSON DecodedType = "JSON"
	DecodedTypeHTML DecodedType = "HTML"
)

// Merge is a per-field hint supplied by the caller: a value is
// base64-encoded and/or carries a known decoded type, or a
// matchImportance weight used by the Mock Resolver's
// header-stripped / schema-only tiers.
type Merge struct {
	Encoding        Encoding
	DecodedType     DecodedType
	MatchImportance *float64
}

// Merges maps top-level keys of an object value to their Merge hint.
type Merges map[string]Merge

// Schema is the recursive JsonSchema variant this package works with.
type Schema struct {
	Kind Kind `json:"kind"`

	// OBJECT: always present (possibly empty), per the invariant in §3.
	Properties map[string]*Schema `json:"properties,omitempty"`

	// ORDERED_LIST / UNORDERED_LIST: schema of the first element, if any.
	Items *Schema `json:"items,omitempty"`

	// Optional merge-derived fields.
	Encoding        Encoding `json:"encoding,omitempty"`
	DecodedType     DecodedType `json:"decodedType,omitempty"`
	MatchImportance *float64 `json:"matchImportance,omitempty"`
}

// NewObjectSchema always initializes Properties, even to an empty map,
// per the §3 invariant that OBJECT schemas carry a present properties map.
func NewObjectSchema() *Schema {
	return &Schema{Kind: KindObject, Properties: map[string]*Schema{}}
}
