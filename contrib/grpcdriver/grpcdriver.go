// Package grpcdriver instruments google.golang.org/grpc unary calls via
// its interceptor extension points (grpc.UnaryServerInterceptor /
// grpc.UnaryClientInterceptor). Streaming RPCs are out of scope: a
// stream has no single input/output value to hash and match against a
// mock, and the span model here is a single-shot input-value/
// output-value pair.
package grpcdriver

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"

	"github.com/Use-Tusk/tusk-drift-go-sdk/driftsdk"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/mode"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/tdcontext"
)

type rpcValue struct {
	Method  string `json:"method"`
	Request string `json:"request,omitempty"`
}

func marshalMessage(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// UnaryServerInterceptor records/replays inbound unary RPCs the way
// contrib/http's Middleware does for inbound HTTP requests.
func UnaryServerInterceptor(inst *driftsdk.Instance) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if inst == nil || inst.Mode() == mode.Disabled {
			return handler(ctx, req)
		}

		opts := tdcontext.StartSpanOptions{
			Name:                info.FullMethod,
			PackageName:         "grpc",
			InstrumentationName: "contrib/grpcdriver",
			PackageType:         tdcontext.PackageGRPC,
			Kind:                tdcontext.KindServer,
			InputValue:          marshalMessage(rpcValue{Method: info.FullMethod, Request: marshalMessage(req)}),
		}

		span, spanCtx := inst.CreateSpan(ctx, opts)
		resp, err := handler(spanCtx, req)
		if span == nil {
			return resp, err
		}
		span.SetAttr(tdcontext.AttrOutputValue, marshalMessage(resp))
		if err != nil {
			span.SetStatus(tdcontext.ErrorStatus(err))
		}
		tdcontext.EndSpan(span)
		inst.EnqueueSpan(span)
		return resp, err
	}
}

// UnaryClientInterceptor records outbound unary RPCs in RECORD mode
// and, in REPLAY mode, resolves the call against a mock without
// invoking invoker at all.
func UnaryClientInterceptor(inst *driftsdk.Instance) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		if inst == nil || inst.Mode() == mode.Disabled {
			return invoker(ctx, method, req, reply, cc, callOpts...)
		}

		opts := tdcontext.StartSpanOptions{
			Name:                method,
			PackageName:         "grpc",
			InstrumentationName: "contrib/grpcdriver",
			PackageType:         tdcontext.PackageGRPC,
			Kind:                tdcontext.KindClient,
			InputValue:          marshalMessage(rpcValue{Method: method, Request: marshalMessage(req)}),
		}

		if inst.Mode() == mode.Replay {
			_, resp, found, err := inst.HandleReplayMode(ctx, opts)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("grpcdriver: no recorded mock for %s", method)
			}
			return json.Unmarshal([]byte(resp.OutputValue), reply)
		}

		_, _, err := inst.HandleRecordMode(ctx, opts, func(rctx context.Context) (string, error) {
			if iErr := invoker(rctx, method, req, reply, cc, callOpts...); iErr != nil {
				return "", iErr
			}
			return marshalMessage(reply), nil
		})
		return err
	}
}
