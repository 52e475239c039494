// Package firestoredriver instruments a generic document-store
// interface in Firestore's shape (collection/document get-or-set, one
// JSON document). No Firestore client appears anywhere in the example
// pack's go.mod files (DESIGN.md), so this is a stdlib-only interface
// shim rather than a wrap of google.golang.org/firestore, mirroring
// contrib/prismadriver's same carve-out.
package firestoredriver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Use-Tusk/tusk-drift-go-sdk/driftsdk"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/mode"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/tdcontext"
)

// DocumentStore is the minimal surface a Firestore-backed repository
// exposes: fetch or write one document by collection/id.
type DocumentStore interface {
	GetDocument(ctx context.Context, collection, id string) (interface{}, error)
	SetDocument(ctx context.Context, collection, id string, data interface{}) error
}

// Client wraps a DocumentStore with record/replay instrumentation.
type Client struct {
	Raw  DocumentStore
	Inst *driftsdk.Instance
}

func New(raw DocumentStore, inst *driftsdk.Instance) *Client {
	return &Client{Raw: raw, Inst: inst}
}

type docRef struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// GetDocument fetches one document, recording or replaying its value.
func (c *Client) GetDocument(ctx context.Context, collection, id string) (interface{}, error) {
	if c.Inst == nil || c.Inst.Mode() == mode.Disabled {
		return c.Raw.GetDocument(ctx, collection, id)
	}

	in, _ := json.Marshal(docRef{Collection: collection, ID: id})
	opts := tdcontext.StartSpanOptions{
		Name:                fmt.Sprintf("firestore.get.%s", collection),
		PackageName:         "firestore",
		InstrumentationName: "contrib/firestoredriver",
		PackageType:         tdcontext.PackageFirestore,
		Kind:                tdcontext.KindClient,
		InputValue:          string(in),
	}

	if c.Inst.Mode() == mode.Replay {
		_, resp, found, err := c.Inst.HandleReplayMode(ctx, opts)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("firestoredriver: no recorded mock for %s/%s", collection, id)
		}
		var out interface{}
		if err := json.Unmarshal([]byte(resp.OutputValue), &out); err != nil {
			return nil, fmt.Errorf("firestoredriver: decode mocked document: %w", err)
		}
		return out, nil
	}

	var doc interface{}
	_, _, err := c.Inst.HandleRecordMode(ctx, opts, func(rctx context.Context) (string, error) {
		var getErr error
		doc, getErr = c.Raw.GetDocument(rctx, collection, id)
		if getErr != nil {
			return "", getErr
		}
		out, marshalErr := json.Marshal(doc)
		if marshalErr != nil {
			return "", marshalErr
		}
		return string(out), nil
	})
	return doc, err
}

// SetDocument writes one document. Writes are recorded as a span with
// no mock substitution in REPLAY mode: a replayed write has nothing
// to compare against a prior read, so it runs straight through to the
// real store; callers that need writes suppressed entirely during
// replay should guard the call with inst.Mode().
func (c *Client) SetDocument(ctx context.Context, collection, id string, data interface{}) error {
	if c.Inst == nil || c.Inst.Mode() == mode.Disabled {
		return c.Raw.SetDocument(ctx, collection, id, data)
	}

	in, _ := json.Marshal(struct {
		docRef
		Data interface{} `json:"data,omitempty"`
	}{docRef: docRef{Collection: collection, ID: id}, Data: data})
	opts := tdcontext.StartSpanOptions{
		Name:                fmt.Sprintf("firestore.set.%s", collection),
		PackageName:         "firestore",
		InstrumentationName: "contrib/firestoredriver",
		PackageType:         tdcontext.PackageFirestore,
		Kind:                tdcontext.KindClient,
		InputValue:          string(in),
	}
	_, _, err := c.Inst.HandleRecordMode(ctx, opts, func(rctx context.Context) (string, error) {
		if setErr := c.Raw.SetDocument(rctx, collection, id, data); setErr != nil {
			return "", setErr
		}
		return "{}", nil
	})
	return err
}
