// Package jwksdriver wraps lestrrat-go/jwx/v2's remote JWKS fetch
// (jwk.Fetch) in a span: the fetch is a real outbound HTTP call to the
// issuer's keys endpoint, so it gets the same RECORD/REPLAY treatment
// as contrib/http's outbound RoundTrip — in REPLAY mode the network
// call is skipped entirely and the key set is rebuilt from the
// recorded JWKS JSON.
package jwksdriver

import (
	"context"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/Use-Tusk/tusk-drift-go-sdk/driftsdk"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/mode"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/tdcontext"
)

type fetchInput struct {
	URL string `json:"url"`
}

// Fetch retrieves the JWK set at url, recording the raw JSON in RECORD
// mode and reconstructing the set from a recorded mock in REPLAY mode
// instead of making the real HTTP request.
func Fetch(ctx context.Context, inst *driftsdk.Instance, url string) (jwk.Set, error) {
	if inst == nil || inst.Mode() == mode.Disabled {
		return jwk.Fetch(ctx, url)
	}

	opts := tdcontext.StartSpanOptions{
		Name:                "jwks.fetch",
		PackageName:         "lestrrat-go-jwx",
		InstrumentationName: "contrib/jwksdriver",
		PackageType:         tdcontext.PackageJWKS,
		Kind:                tdcontext.KindClient,
		InputValue:          mustMarshal(fetchInput{URL: url}),
	}

	if inst.Mode() == mode.Replay {
		_, resp, found, err := inst.HandleReplayMode(ctx, opts)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("jwksdriver: no recorded mock for %s", url)
		}
		return jwk.Parse([]byte(resp.OutputValue))
	}

	var set jwk.Set
	_, _, err := inst.HandleRecordMode(ctx, opts, func(rctx context.Context) (string, error) {
		var fetchErr error
		set, fetchErr = jwk.Fetch(rctx, url)
		if fetchErr != nil {
			return "", fetchErr
		}
		raw, marshalErr := jsonMarshalSet(set)
		if marshalErr != nil {
			return "", marshalErr
		}
		return raw, nil
	})
	return set, err
}

func mustMarshal(v fetchInput) string {
	return fmt.Sprintf(`{"url":%q}`, v.URL)
}

func jsonMarshalSet(set jwk.Set) (string, error) {
	data, err := set.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}
