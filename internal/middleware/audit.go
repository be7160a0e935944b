package middleware

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/redactd/redactd/internal/audit"
	"github.com/redactd/redactd/internal/mcp"
)

// Audit returns the outermost tool-pipeline layer. It times the inner
// call, reads the redaction summary the PII layer attached to the
// request, and emits exactly one entry per invocation — after the PII
// layer has finished, so the audit stream never sees raw PII.
//
// On an inner error the entry records status=error with zero output and
// the error is re-raised. A successful response with isError set also
// records status=error.
func Audit(sink audit.Sink, profileName string, logger *zap.Logger) ToolMiddleware {
	return func(ctx context.Context, req *mcp.ToolRequest, next ToolHandler) (*mcp.ToolResponse, error) {
		start := time.Now()
		params := serializeParams(req.Arguments, logger)

		resp, err := next(ctx, req)
		if err != nil {
			sink.Emit(&audit.Entry{
				Timestamp:         audit.FormatTimestamp(time.Now()),
				UpstreamTool:      req.Name,
				ComplianceProfile: profileName,
				InputParameters:   params,
				OutputSizeBytes:   0,
				RedactionCount:    0,
				RedactedTypes:     []string{},
				ExecutionTimeMS:   time.Since(start).Milliseconds(),
				Status:            audit.StatusError,
				Error:             err.Error(),
			})
			return nil, err
		}

		count := 0
		types := []string{}
		if sum := req.Redaction(); sum != nil {
			count = sum.Count()
			types = sum.Types()
		}

		size := 0
		if b, merr := json.Marshal(resp); merr == nil {
			size = len(b)
		} else {
			logger.Error("audit response serialization failed", zap.Error(merr))
		}

		status := audit.StatusSuccess
		if resp.IsError {
			status = audit.StatusError
		}

		sink.Emit(&audit.Entry{
			Timestamp:         audit.FormatTimestamp(time.Now()),
			UpstreamTool:      req.Name,
			ComplianceProfile: profileName,
			InputParameters:   params,
			OutputSizeBytes:   size,
			RedactionCount:    count,
			RedactedTypes:     types,
			ExecutionTimeMS:   time.Since(start).Milliseconds(),
			Status:            status,
		})
		return resp, nil
	}
}

func serializeParams(args map[string]any, logger *zap.Logger) string {
	if args == nil {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		logger.Error("audit argument serialization failed", zap.Error(err))
		return "{}"
	}
	return audit.TruncateParams(string(b))
}
