package transport

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MessageType tags an Envelope's Payload so the reader knows which
// struct to decode it into: a discriminated union over the wire
// protocol's message kinds.
type MessageType string

const (
	TypeConnectRequest              MessageType = "ConnectRequest"
	TypeConnectResponse             MessageType = "ConnectResponse"
	TypeGetMockRequest               MessageType = "GetMockRequest"
	TypeGetMockResponse              MessageType = "GetMockResponse"
	TypeSendInboundSpanForReplay      MessageType = "SendInboundSpanForReplayRequest"
)

// Envelope is the outer frame payload: every message on the wire is an
// Envelope whose Payload is itself msgpack-encoded bytes of the
// type-specific struct below. RequestID correlates a response to the
// request that triggered it; it is empty on fire-and-forget messages
// (SendInboundSpanForReplayRequest).
type Envelope struct {
	Type      MessageType `msgpack:"type"`
	RequestID string      `msgpack:"requestId,omitempty"`
	Payload   []byte      `msgpack:"payload"`
}

// ConnectRequest is sent once, immediately after dialing.
type ConnectRequest struct {
	SDKVersion string `msgpack:"sdkVersion"`
	Mode       string `msgpack:"mode"`
}

// ConnectResponse acknowledges a ConnectRequest.
type ConnectResponse struct {
	Ack     bool   `msgpack:"ack"`
	Message string `msgpack:"message,omitempty"`
}

// GetMockRequest asks the CLI's Mock Resolver for a recorded response
// matching a replayed outbound call.
type GetMockRequest struct {
	TraceID                 string `msgpack:"traceId"`
	SpanID                  string `msgpack:"spanId"`
	PackageName             string `msgpack:"packageName"`
	InstrumentationName     string `msgpack:"instrumentationName"`
	InputValueHash          string `msgpack:"inputValueHash,omitempty"`
	StrippedInputValueHash  string `msgpack:"strippedInputValueHash,omitempty"`
	InputSchemaHash         string `msgpack:"inputSchemaHash,omitempty"`
}

// GetMockResponse carries the matched mock, if any.
type GetMockResponse struct {
	Found        bool   `msgpack:"found"`
	StubID       string `msgpack:"stubId,omitempty"`
	OutputValue  string `msgpack:"outputValue,omitempty"`  // pre-serialized JSON
	OutputSchema string `msgpack:"outputSchema,omitempty"` // pre-serialized JSON
	MatchedTier  int    `msgpack:"matchedTier,omitempty"`
}

// SendInboundSpanForReplayRequest ships a finished inbound span to the
// CLI for replay-mode bookkeeping. No response is expected.
type SendInboundSpanForReplayRequest struct {
	TraceID string `msgpack:"traceId"`
	SpanID  string `msgpack:"spanId"`
	Span    []byte `msgpack:"span"` // pre-serialized CleanSpan JSON
}

// encode packs v as the Payload of an Envelope of type t.
func encode(t MessageType, requestID string, v any) ([]byte, error) {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("transport: encode %s payload: %w", t, err)
	}
	env := Envelope{Type: t, RequestID: requestID, Payload: payload}
	buf, err := msgpack.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("transport: encode %s envelope: %w", t, err)
	}
	return buf, nil
}

// decodeEnvelope unpacks the outer Envelope only; callers then decode
// Payload into the struct matching Type.
func decodeEnvelope(buf []byte) (Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(buf, &env); err != nil {
		return Envelope{}, fmt.Errorf("transport: decode envelope: %w", err)
	}
	return env, nil
}

func decodePayload(env Envelope, v any) error {
	if err := msgpack.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("transport: decode %s payload: %w", env.Type, err)
	}
	return nil
}
