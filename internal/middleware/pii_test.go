package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/redactd/redactd/internal/mcp"
	"github.com/redactd/redactd/internal/ner"
	"github.com/redactd/redactd/internal/profile"
)

func gdprStage1Only() profile.Profile {
	return profile.Profile{Name: "GDPR", Stage1: true, Stage2: false}
}

func textResponse(texts ...string) *mcp.ToolResponse {
	blocks := make([]mcp.ContentBlock, len(texts))
	for i, s := range texts {
		blocks[i] = mcp.NewTextBlock(s)
	}
	return &mcp.ToolResponse{Content: blocks}
}

func runPIITool(t *testing.T, prof profile.Profile, red *ner.Redactor, req *mcp.ToolRequest, resp *mcp.ToolResponse) (*mcp.ToolResponse, error) {
	t.Helper()
	h := Chain([]ToolMiddleware{PIITool(prof, red, zap.NewNop())}, func(ctx context.Context, r *mcp.ToolRequest) (*mcp.ToolResponse, error) {
		return resp, nil
	})
	return h(context.Background(), req)
}

func TestPIITool_MasksTextBlocks(t *testing.T) {
	req := &mcp.ToolRequest{Name: "elastic_search"}
	out, err := runPIITool(t, gdprStage1Only(), nil, req,
		textResponse("Contact john@example.com, SSN 123-45-6789"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := out.Content[0].Text; got != "Contact j***@example.com, SSN ***-**-****" {
		t.Errorf("masked text = %q", got)
	}
	sum := req.Redaction()
	if sum == nil {
		t.Fatal("no redaction summary attached")
	}
	if sum.Count() != 2 {
		t.Errorf("count = %d, want 2", sum.Count())
	}
	if !reflect.DeepEqual(sum.Types(), []string{"email", "ssn"}) {
		t.Errorf("types = %v", sum.Types())
	}
}

func TestPIITool_LuhnInvalidUntouched(t *testing.T) {
	req := &mcp.ToolRequest{Name: "search"}
	out, err := runPIITool(t, gdprStage1Only(), nil, req,
		textResponse("Card 1234 5678 9012 3456 and 4111 1111 1111 1111"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := out.Content[0].Text; got != "Card 1234 5678 9012 3456 and **** **** **** 1111" {
		t.Errorf("masked text = %q", got)
	}
	sum := req.Redaction()
	if sum.Count() != 1 || !reflect.DeepEqual(sum.Types(), []string{"credit_card"}) {
		t.Errorf("summary = %d %v", sum.Count(), sum.Types())
	}
}

func TestPIITool_ErrorResponsePassthrough(t *testing.T) {
	req := &mcp.ToolRequest{Name: "search"}
	resp := textResponse("user@example.com not found")
	resp.IsError = true

	out, err := runPIITool(t, gdprStage1Only(), nil, req, resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Content[0].Text != "user@example.com not found" {
		t.Errorf("error payload was masked: %q", out.Content[0].Text)
	}
	sum := req.Redaction()
	if sum == nil {
		t.Fatal("annotation missing on error passthrough")
	}
	if sum.Count() != 0 {
		t.Errorf("count = %d, want 0", sum.Count())
	}
}

func TestPIITool_LegacyResponsePassthrough(t *testing.T) {
	raw := []byte(`{"toolResult":"contact admin@example.com"}`)
	var legacy mcp.ToolResponse
	if err := json.Unmarshal(raw, &legacy); err != nil {
		t.Fatal(err)
	}
	if !legacy.Legacy() {
		t.Fatal("fixture not detected as legacy")
	}

	req := &mcp.ToolRequest{Name: "old_tool"}
	out, err := runPIITool(t, gdprStage1Only(), nil, req, &legacy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := json.Marshal(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(raw) {
		t.Errorf("legacy response changed: %s", got)
	}
}

func TestPIITool_NonTextBlocksSkipped(t *testing.T) {
	var img mcp.ContentBlock
	if err := json.Unmarshal([]byte(`{"type":"image","data":"aWJt","mimeType":"image/png"}`), &img); err != nil {
		t.Fatal(err)
	}
	resp := &mcp.ToolResponse{Content: []mcp.ContentBlock{img, mcp.NewTextBlock("a@b.io")}}

	req := &mcp.ToolRequest{Name: "render"}
	out, err := runPIITool(t, gdprStage1Only(), nil, req, resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gotImg, _ := json.Marshal(out.Content[0])
	if string(gotImg) != `{"type":"image","data":"aWJt","mimeType":"image/png"}` {
		t.Errorf("image block changed: %s", gotImg)
	}
	if out.Content[1].Text != "a***@b.io" {
		t.Errorf("text block not masked: %q", out.Content[1].Text)
	}
}

// stage2Client asserts stage ordering: DetectPII must only ever see text
// that stage 1 already masked.
type stage2Client struct {
	t           *testing.T
	detectCalls int
}

func (c *stage2Client) ContainsPII(ctx context.Context, text, language string) ([]string, error) {
	return []string{"NAME"}, nil
}

func (c *stage2Client) DetectPII(ctx context.Context, text, language string) ([]ner.Entity, error) {
	c.detectCalls++
	if strings.Contains(text, "123-45-6789") {
		c.t.Errorf("stage 2 saw raw stage-1 data: %q", text)
	}
	if i := strings.Index(text, "Alice"); i >= 0 {
		return []ner.Entity{{Type: "NAME", BeginOffset: i, EndOffset: i + len("Alice")}}, nil
	}
	return nil, nil
}

func TestPIITool_Stage2AfterStage1(t *testing.T) {
	client := &stage2Client{t: t}
	red := ner.NewRedactor(client, []string{"NAME"}, zap.NewNop())
	prof := profile.Profile{Name: "full", Stage1: true, Stage2: true}

	req := &mcp.ToolRequest{Name: "search"}
	out, err := runPIITool(t, prof, red, req, textResponse("Alice has SSN 123-45-6789"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := out.Content[0].Text; got != "[REDACTED:NAME] has SSN ***-**-****" {
		t.Errorf("masked text = %q", got)
	}
	if client.detectCalls == 0 {
		t.Error("stage 2 never ran")
	}

	sum := req.Redaction()
	if sum.Count() != 2 {
		t.Errorf("count = %d, want 2", sum.Count())
	}
	if !reflect.DeepEqual(sum.Types(), []string{"NAME", "ssn"}) {
		t.Errorf("types = %v", sum.Types())
	}
}

func TestPIITool_CancellationSurfaces(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := Chain([]ToolMiddleware{PIITool(gdprStage1Only(), nil, zap.NewNop())}, func(ctx context.Context, r *mcp.ToolRequest) (*mcp.ToolResponse, error) {
		cancel() // deadline fires while the upstream call is in flight
		return textResponse("a@b.io"), nil
	})

	_, err := h(ctx, &mcp.ToolRequest{Name: "search"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestPIIResource_TextAndBlobItems(t *testing.T) {
	var blob mcp.ResourceItem
	if err := json.Unmarshal([]byte(`{"uri":"file:///x.bin","blob":"aWJt"}`), &blob); err != nil {
		t.Fatal(err)
	}
	resp := &mcp.ResourceResponse{Contents: []mcp.ResourceItem{
		mcp.NewTextItem("file:///a.txt", "text/plain", "reach me at ops@corp.io"),
		blob,
	}}

	h := Chain([]ResourceMiddleware{PIIResource(gdprStage1Only(), nil, zap.NewNop())}, func(ctx context.Context, r *mcp.ResourceRequest) (*mcp.ResourceResponse, error) {
		return resp, nil
	})
	out, err := h(context.Background(), &mcp.ResourceRequest{URI: "file:///a.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Contents[0].Text != "reach me at o***@corp.io" {
		t.Errorf("text item not masked: %q", out.Contents[0].Text)
	}
	gotBlob, _ := json.Marshal(out.Contents[1])
	if string(gotBlob) != `{"uri":"file:///x.bin","blob":"aWJt"}` {
		t.Errorf("blob item changed: %s", gotBlob)
	}
}
