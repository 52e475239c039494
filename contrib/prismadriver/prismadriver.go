// Package prismadriver instruments a generic query-executor interface
// in Prisma's shape (model/action/args, one JSON result), for services
// that proxy to a Prisma-backed API over an internal RPC boundary. No
// Go Prisma client exists in the ecosystem (DESIGN.md), so this is
// necessarily a stdlib-only interface shim rather than a wrap of a
// real client library — the Non-goal carve-out documented there.
package prismadriver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Use-Tusk/tusk-drift-go-sdk/driftsdk"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/mode"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/tdcontext"
)

// Executor is the minimal surface a Prisma-backed query layer exposes:
// one model/action operation in, one JSON-decodable result out.
type Executor interface {
	Execute(ctx context.Context, model, action string, args interface{}) (interface{}, error)
}

// Client wraps an Executor with record/replay instrumentation.
type Client struct {
	Raw  Executor
	Inst *driftsdk.Instance
}

func New(raw Executor, inst *driftsdk.Instance) *Client {
	return &Client{Raw: raw, Inst: inst}
}

type queryInput struct {
	Model  string      `json:"model"`
	Action string      `json:"action"`
	Args   interface{} `json:"args,omitempty"`
}

// Execute runs one Prisma operation (e.g. model "User", action
// "findUnique"), recording or replaying its result.
func (c *Client) Execute(ctx context.Context, model, action string, args interface{}) (interface{}, error) {
	if c.Inst == nil || c.Inst.Mode() == mode.Disabled {
		return c.Raw.Execute(ctx, model, action, args)
	}

	in, err := json.Marshal(queryInput{Model: model, Action: action, Args: args})
	if err != nil {
		return nil, err
	}
	opts := tdcontext.StartSpanOptions{
		Name:                fmt.Sprintf("prisma.%s.%s", model, action),
		PackageName:         "prisma",
		InstrumentationName: "contrib/prismadriver",
		PackageType:         tdcontext.PackagePrisma,
		Kind:                tdcontext.KindClient,
		InputValue:          string(in),
	}

	if c.Inst.Mode() == mode.Replay {
		_, resp, found, err := c.Inst.HandleReplayMode(ctx, opts)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("prismadriver: no recorded mock for %s.%s", model, action)
		}
		var out interface{}
		if err := json.Unmarshal([]byte(resp.OutputValue), &out); err != nil {
			return nil, fmt.Errorf("prismadriver: decode mocked result: %w", err)
		}
		return out, nil
	}

	var result interface{}
	_, _, err = c.Inst.HandleRecordMode(ctx, opts, func(rctx context.Context) (string, error) {
		var execErr error
		result, execErr = c.Raw.Execute(rctx, model, action, args)
		if execErr != nil {
			return "", execErr
		}
		out, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			return "", marshalErr
		}
		return string(out), nil
	})
	return result, err
}
