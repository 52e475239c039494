// Package idgen generates trace and span identifiers: a 128-bit TraceId
// and a 64-bit SpanId, both rendered as lowercase hex.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// TraceID is a 128-bit trace identifier rendered as 32 lowercase hex chars.
type TraceID [16]byte

// SpanID is a 64-bit span identifier rendered as 16 lowercase hex chars.
type SpanID [8]byte

// Zero values, used to represent "no id" without pointers.
var (
	ZeroTraceID TraceID
	ZeroSpanID  SpanID
)

func (t TraceID) String() string { return hex.EncodeToString(t[:]) }
func (s SpanID) String() string  { return hex.EncodeToString(s[:]) }

func (t TraceID) IsZero() bool { return t == ZeroTraceID }
func (s SpanID) IsZero() bool  { return s == ZeroSpanID }

// NewTraceID generates a fresh random trace id.
func NewTraceID() TraceID {
	var t TraceID
	mustRead(t[:])
	return t
}

// NewSpanID generates a fresh random span id.
func NewSpanID() SpanID {
	var s SpanID
	mustRead(s[:])
	return s
}

func mustRead(b []byte) {
	if _, err := rand.Read(b); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is broken,
		// which is not a condition this SDK can recover from or hide.
		panic("idgen: failed to read random bytes: " + err.Error())
	}
}

// ParseTraceID parses a lowercase-hex-encoded trace id, e.g. from the
// inbound x-td-trace-id header.
func ParseTraceID(s string) (TraceID, bool) {
	var t TraceID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(t) {
		return ZeroTraceID, false
	}
	copy(t[:], b)
	return t, true
}

// ParseSpanID parses a lowercase-hex-encoded span id.
func ParseSpanID(s string) (SpanID, bool) {
	var sp SpanID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(sp) {
		return ZeroSpanID, false
	}
	copy(sp[:], b)
	return sp, true
}
