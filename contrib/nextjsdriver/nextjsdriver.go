// Package nextjsdriver adapts contrib/http's inbound middleware for
// Next.js API routes / route handlers running under Go's net/http
// (e.g. via a Node<->Go sidecar or a Go-ported route handler): Next.js
// is a Node/TS framework, but its wire shape at the boundary this SDK
// cares about is plain HTTP, so there is nothing here beyond naming —
// it reuses contrib/http.Middleware outright (DESIGN.md).
package nextjsdriver

import (
	"net/http"

	contribhttp "github.com/Use-Tusk/tusk-drift-go-sdk/contrib/http"
	"github.com/Use-Tusk/tusk-drift-go-sdk/driftsdk"
)

// Middleware instruments a Next.js-style route handler the same way
// contrib/http.Middleware instruments any net/http handler.
func Middleware(inst *driftsdk.Instance, next http.Handler) http.Handler {
	return contribhttp.Middleware(inst, next)
}
