package middleware

import (
	"context"

	"go.uber.org/zap"

	"github.com/redactd/redactd/internal/mcp"
	"github.com/redactd/redactd/internal/ner"
	"github.com/redactd/redactd/internal/profile"
	"github.com/redactd/redactd/internal/redact"
)

// maskingFailurePlaceholder replaces a content block whose masking
// panicked. The raw text must never leak, so the block's whole text is
// replaced.
const maskingFailurePlaceholder = "[REDACTION FAILURE]"

// PIITool returns the tool-response redaction layer. After the inner call
// returns it walks the content blocks, applies stage 1 and (when enabled)
// stage 2 to each text block, and attaches the accumulated summary to the
// request's annotation slot for the audit layer to read.
//
// Legacy responses without content blocks and responses with isError set
// pass through unchanged: error payloads are bounded human-readable
// strings, and masking them produces noisy false positives on diagnostic
// identifiers.
//
// nerRedactor is nil when stage 2 is disabled by profile or feature flag.
func PIITool(prof profile.Profile, nerRedactor *ner.Redactor, logger *zap.Logger) ToolMiddleware {
	return func(ctx context.Context, req *mcp.ToolRequest, next ToolHandler) (*mcp.ToolResponse, error) {
		resp, err := next(ctx, req)
		if err != nil {
			return nil, err
		}

		sum := redact.NewSummary()
		req.SetRedaction(sum)

		if resp.Legacy() || resp.IsError {
			return resp, nil
		}

		content := make([]mcp.ContentBlock, len(resp.Content))
		for i, block := range resp.Content {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if !block.IsText() {
				content[i] = block
				continue
			}
			masked, err := maskText(ctx, block.Text, prof, nerRedactor, sum, logger)
			if err != nil {
				return nil, err
			}
			content[i] = block.WithText(masked)
		}

		return &mcp.ToolResponse{Content: content, IsError: resp.IsError}, nil
	}
}

// PIIResource returns the resource-response redaction layer. Text items
// go through the same stage-1/stage-2 pipeline; blob items pass through.
// Resources are static reference content, so no annotation is attached
// and no audit layer is installed on this pipeline.
func PIIResource(prof profile.Profile, nerRedactor *ner.Redactor, logger *zap.Logger) ResourceMiddleware {
	return func(ctx context.Context, req *mcp.ResourceRequest, next ResourceHandler) (*mcp.ResourceResponse, error) {
		resp, err := next(ctx, req)
		if err != nil {
			return nil, err
		}

		sum := redact.NewSummary()
		contents := make([]mcp.ResourceItem, len(resp.Contents))
		for i, item := range resp.Contents {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if !item.IsText() {
				contents[i] = item
				continue
			}
			masked, err := maskText(ctx, item.Text, prof, nerRedactor, sum, logger)
			if err != nil {
				return nil, err
			}
			contents[i] = item.WithText(masked)
		}

		return &mcp.ResourceResponse{Contents: contents}, nil
	}
}

// maskText runs stage 1 then stage 2 over a single string. Stage 1 is
// always fully applied before stage 2 sees the text, and a cancellation
// between the stages surfaces instead of returning a half-processed
// value. A panic inside masking substitutes the opaque placeholder so the
// raw text cannot leak.
func maskText(ctx context.Context, text string, prof profile.Profile, nerRedactor *ner.Redactor, sum *redact.Summary, logger *zap.Logger) (masked string, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("masking failure, substituting placeholder", zap.Any("panic", r))
			masked, err = maskingFailurePlaceholder, nil
		}
	}()

	s := text
	if prof.Stage1 {
		s = redact.StringInto(s, sum)
	}
	if prof.Stage2 && nerRedactor != nil {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		out, count, types, nerr := nerRedactor.RedactText(ctx, s)
		if nerr != nil {
			return "", nerr
		}
		sum.Merge(count, types)
		s = out
	}
	return s, nil
}
