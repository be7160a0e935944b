// Package middleware implements the onion composition kernel and the
// layers the proxy installs around upstream calls.
//
// The first layer in a chain is outermost: requests flow left to right,
// responses flow back right to left. The ordering is load-bearing — the
// audit layer sits outside the PII layer so its post-processing only ever
// sees redacted responses.
package middleware

import (
	"context"
	"errors"

	"github.com/redactd/redactd/internal/mcp"
)

// ErrNextCalledTwice is returned when a layer invokes its next
// continuation more than once in a single invocation. The second call
// fails deterministically without reaching the inner layers.
var ErrNextCalledTwice = errors.New("middleware: next called more than once in a single invocation")

// Handler is a terminal operation or a partially composed chain.
type Handler[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Middleware is one onion layer. It may transform the request before
// calling next, transform the result after, short-circuit by returning
// without calling next, or propagate an error from next.
type Middleware[Req, Resp any] func(ctx context.Context, req Req, next Handler[Req, Resp]) (Resp, error)

// Chain composes layers over a terminal operation. Layers run strictly
// sequentially for a single request; errors from the terminal or any
// layer propagate outward in reverse onion order.
func Chain[Req, Resp any](layers []Middleware[Req, Resp], terminal Handler[Req, Resp]) Handler[Req, Resp] {
	h := terminal
	for i := len(layers) - 1; i >= 0; i-- {
		layer, inner := layers[i], h
		h = func(ctx context.Context, req Req) (Resp, error) {
			called := false
			next := func(ctx context.Context, req Req) (Resp, error) {
				if called {
					var zero Resp
					return zero, ErrNextCalledTwice
				}
				called = true
				return inner(ctx, req)
			}
			return layer(ctx, req, next)
		}
	}
	return h
}

// Concrete pipeline shapes.
type (
	ToolHandler        = Handler[*mcp.ToolRequest, *mcp.ToolResponse]
	ToolMiddleware     = Middleware[*mcp.ToolRequest, *mcp.ToolResponse]
	ResourceHandler    = Handler[*mcp.ResourceRequest, *mcp.ResourceResponse]
	ResourceMiddleware = Middleware[*mcp.ResourceRequest, *mcp.ResourceResponse]
)
