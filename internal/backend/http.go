package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redactd/redactd/internal/mcp"
)

// HTTPBackend posts each JSON-RPC request to a single upstream URL and
// reads the response body as the correlated JSON-RPC response.
type HTTPBackend struct {
	url    string
	client *http.Client
	nextID atomic.Int64
}

// NewHTTPBackend creates a backend for the given upstream URL.
func NewHTTPBackend(url string) *HTTPBackend {
	return &HTTPBackend{
		url: url,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (b *HTTPBackend) CallTool(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	return callTool(ctx, b.Forward, req)
}

func (b *HTTPBackend) ReadResource(ctx context.Context, req *mcp.ResourceRequest) (*mcp.ResourceResponse, error) {
	return readResource(ctx, b.Forward, req)
}

func (b *HTTPBackend) Forward(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	id := b.nextID.Add(1)
	body, err := json.Marshal(mcp.Request{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      json.RawMessage(strconv.FormatInt(id, 10)),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http backend: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http backend: upstream returned %s", httpResp.Status)
	}

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("http backend: read body: %w", err)
	}

	var resp mcp.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("http backend: decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

func (b *HTTPBackend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}
