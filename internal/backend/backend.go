// Package backend provides the opaque upstream handle the pipelines call
// into: send a request, get a response. Transport selection (spawned
// subprocess over stdio vs HTTP) happens at construction time.
package backend

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redactd/redactd/internal/mcp"
)

// ErrClosed is returned for calls made after the backend shut down.
var ErrClosed = errors.New("backend: connection closed")

// Backend is the upstream MCP server handle consumed by the pipelines.
// Implementations must be safe for concurrent use.
type Backend interface {
	// CallTool invokes tools/call upstream.
	CallTool(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error)

	// ReadResource invokes resources/read upstream.
	ReadResource(ctx context.Context, req *mcp.ResourceRequest) (*mcp.ResourceResponse, error)

	// Forward sends any other method verbatim and returns the raw result.
	Forward(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)

	Close() error
}

// callTool and readResource implement the two typed operations on top of
// a raw Forward-style call; both transports share them.
func callTool(ctx context.Context, fwd func(context.Context, string, json.RawMessage) (json.RawMessage, error), req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	params, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	result, err := fwd(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}
	var resp mcp.ToolResponse
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func readResource(ctx context.Context, fwd func(context.Context, string, json.RawMessage) (json.RawMessage, error), req *mcp.ResourceRequest) (*mcp.ResourceResponse, error) {
	params, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	result, err := fwd(ctx, "resources/read", params)
	if err != nil {
		return nil, err
	}
	var resp mcp.ResourceResponse
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
