// Package jwtdriver wraps golang-jwt/jwt/v5's token parsing in a span,
// treating verification as a CLIENT-style call to an implicit trust
// boundary (there is no "local computation" span kind, and parse/verify
// is the unit of work worth recording for drift
// detection: a key rotation between record and replay should surface
// as a mismatch).
package jwtdriver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Use-Tusk/tusk-drift-go-sdk/driftsdk"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/mode"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/tdcontext"
)

type parseInput struct {
	TokenPrefix string `json:"tokenPrefix"`
}

type parseOutput struct {
	Claims map[string]interface{} `json:"claims,omitempty"`
	Valid  bool                   `json:"valid"`
	ErrStr string                 `json:"error,omitempty"`
}

// ParseWithClaims wraps jwt.ParseWithClaims: in RECORD mode it runs the
// real parse and records the resulting claims; in REPLAY mode it
// returns previously recorded claims without verifying a signature at
// all, since the signing key used at record time may not be present
// during replay.
func ParseWithClaims(ctx context.Context, inst *driftsdk.Instance, tokenString string, claims jwt.Claims, keyFunc jwt.Keyfunc, parserOpts ...jwt.ParserOption) (*jwt.Token, error) {
	if inst == nil || inst.Mode() == mode.Disabled {
		return jwt.ParseWithClaims(tokenString, claims, keyFunc, parserOpts...)
	}

	prefix := tokenString
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	in, _ := json.Marshal(parseInput{TokenPrefix: prefix})
	opts := tdcontext.StartSpanOptions{
		Name:                "jwt.parse",
		PackageName:         "golang-jwt",
		InstrumentationName: "contrib/jwtdriver",
		PackageType:         tdcontext.PackageJWT,
		Kind:                tdcontext.KindClient,
		InputValue:          string(in),
	}

	if inst.Mode() == mode.Replay {
		_, resp, found, err := inst.HandleReplayMode(ctx, opts)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("jwtdriver: no recorded mock for token parse")
		}
		var out parseOutput
		if err := json.Unmarshal([]byte(resp.OutputValue), &out); err != nil {
			return nil, fmt.Errorf("jwtdriver: decode mocked claims: %w", err)
		}
		if out.ErrStr != "" {
			return nil, fmt.Errorf("%s", out.ErrStr)
		}
		if mc, ok := claims.(jwt.MapClaims); ok {
			for k, v := range out.Claims {
				mc[k] = v
			}
		}
		return &jwt.Token{Claims: claims, Valid: out.Valid}, nil
	}

	var token *jwt.Token
	_, _, err := inst.HandleRecordMode(ctx, opts, func(rctx context.Context) (string, error) {
		var parseErr error
		token, parseErr = jwt.ParseWithClaims(tokenString, claims, keyFunc, parserOpts...)
		out := parseOutput{Valid: token != nil && token.Valid}
		if mc, ok := claims.(jwt.MapClaims); ok {
			out.Claims = mc
		}
		if parseErr != nil {
			out.ErrStr = parseErr.Error()
		}
		data, _ := json.Marshal(out)
		return string(data), parseErr
	})
	return token, err
}
