// Package mcp holds the parsed request/response envelopes the proxy moves
// between the client and the upstream server. Wire framing lives in
// internal/backend and internal/server; this package only models shapes.
package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/redactd/redactd/internal/redact"
)

// JSONRPCVersion is the only protocol version the proxy speaks.
const JSONRPCVersion = "2.0"

// Request is a single JSON-RPC request or notification (nil ID).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no ID.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response is a single JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object. It doubles as a Go error so
// upstream failures can flow through the middleware onion unchanged.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes used when synthesizing responses.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ToolRequest is a parsed tools/call invocation.
//
// The redaction slot is the write-once side channel between the PII
// middleware and the audit middleware. It lives exactly as long as the
// request and is never serialized.
type ToolRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`

	redaction *redact.Summary
}

// SetRedaction attaches the redaction summary produced while processing
// this request's response. The first write wins.
func (r *ToolRequest) SetRedaction(s *redact.Summary) {
	if r.redaction == nil {
		r.redaction = s
	}
}

// Redaction returns the attached summary, or nil if the PII middleware
// never ran for this request.
func (r *ToolRequest) Redaction() *redact.Summary {
	return r.redaction
}

// ContentBlock is one tagged element of a tool response. Only text blocks
// participate in redaction; every other carrier round-trips through the
// proxy byte-for-byte via the retained raw form.
type ContentBlock struct {
	Type string
	Text string

	raw json.RawMessage
}

// NewTextBlock builds a text content block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// IsText reports whether the block carries redactable text.
func (b *ContentBlock) IsText() bool {
	return b.Type == "text"
}

// WithText returns a copy of the block with replaced text. Calling it on a
// non-text block is a programming error.
func (b ContentBlock) WithText(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	b.Type = probe.Type
	b.Text = probe.Text
	if probe.Type != "text" {
		b.raw = append(json.RawMessage(nil), data...)
	}
	return nil
}

func (b ContentBlock) MarshalJSON() ([]byte, error) {
	if b.Type != "text" && b.raw != nil {
		return b.raw, nil
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{Type: "text", Text: b.Text})
}

// ToolResponse is a parsed tools/call result. Responses from older servers
// that predate the content-block shape are retained verbatim and flagged
// legacy; middleware passes them through untouched.
type ToolResponse struct {
	Content []ContentBlock
	IsError bool

	legacy json.RawMessage
}

// Legacy reports whether the response lacked a content field on the wire.
func (r *ToolResponse) Legacy() bool {
	return r.legacy != nil
}

func (r *ToolResponse) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if _, ok := probe["content"]; !ok {
		r.legacy = append(json.RawMessage(nil), data...)
		return nil
	}
	var shaped struct {
		Content []ContentBlock `json:"content"`
		IsError bool           `json:"isError"`
	}
	if err := json.Unmarshal(data, &shaped); err != nil {
		return err
	}
	r.Content = shaped.Content
	r.IsError = shaped.IsError
	return nil
}

func (r ToolResponse) MarshalJSON() ([]byte, error) {
	if r.legacy != nil {
		return r.legacy, nil
	}
	content := r.Content
	if content == nil {
		content = []ContentBlock{}
	}
	return json.Marshal(struct {
		Content []ContentBlock `json:"content"`
		IsError bool           `json:"isError,omitempty"`
	}{Content: content, IsError: r.IsError})
}

// ResourceRequest is a parsed resources/read invocation.
type ResourceRequest struct {
	URI string `json:"uri"`
}

// ResourceItem is one element of a resources/read result: either a text
// item (Text set) or an opaque blob retained verbatim.
type ResourceItem struct {
	URI      string
	MimeType string
	Text     string
	hasText  bool

	raw json.RawMessage
}

// NewTextItem builds a text resource item.
func NewTextItem(uri, mimeType, text string) ResourceItem {
	return ResourceItem{URI: uri, MimeType: mimeType, Text: text, hasText: true}
}

// IsText reports whether the item carries redactable text.
func (i *ResourceItem) IsText() bool {
	return i.hasText
}

// WithText returns a copy of the item with replaced text.
func (i ResourceItem) WithText(text string) ResourceItem {
	return ResourceItem{URI: i.URI, MimeType: i.MimeType, Text: text, hasText: true}
}

func (i *ResourceItem) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	var fields struct {
		URI      string `json:"uri"`
		MimeType string `json:"mimeType"`
		Text     string `json:"text"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	i.URI = fields.URI
	i.MimeType = fields.MimeType
	if _, ok := probe["text"]; ok {
		i.Text = fields.Text
		i.hasText = true
		return nil
	}
	i.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (i ResourceItem) MarshalJSON() ([]byte, error) {
	if !i.hasText && i.raw != nil {
		return i.raw, nil
	}
	return json.Marshal(struct {
		URI      string `json:"uri"`
		MimeType string `json:"mimeType,omitempty"`
		Text     string `json:"text"`
	}{URI: i.URI, MimeType: i.MimeType, Text: i.Text})
}

// ResourceResponse is a parsed resources/read result.
type ResourceResponse struct {
	Contents []ResourceItem `json:"contents"`
}
