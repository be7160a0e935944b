// Package server runs the client-facing side of the proxy: a JSON-RPC
// read loop over stdio that routes tools/call and resources/read through
// the redaction pipelines and forwards every other method verbatim.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/redactd/redactd/internal/backend"
	"github.com/redactd/redactd/internal/mcp"
	"github.com/redactd/redactd/internal/middleware"
)

// maxLineBytes bounds a single client request line.
const maxLineBytes = 16 << 20

// Server reads newline-delimited JSON-RPC from in and writes responses to
// out. Each request is handled on its own goroutine; response writes are
// serialized.
type Server struct {
	in  io.Reader
	out io.Writer

	backend   backend.Backend
	tools     middleware.ToolHandler
	resources middleware.ResourceHandler
	logger    *zap.Logger

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// New wires a server over the given streams and pipelines.
func New(in io.Reader, out io.Writer, be backend.Backend, tools middleware.ToolHandler, resources middleware.ResourceHandler, logger *zap.Logger) *Server {
	return &Server{
		in:        in,
		out:       out,
		backend:   be,
		tools:     tools,
		resources: resources,
		logger:    logger,
	}
}

// Run reads requests until EOF or ctx cancellation, then waits for
// in-flight handlers to drain.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		data := append([]byte(nil), line...)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, data)
		}()
	}

	s.wg.Wait()
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (s *Server) handle(ctx context.Context, data []byte) {
	var req mcp.Request
	if err := json.Unmarshal(data, &req); err != nil {
		s.writeError(nil, mcp.CodeParseError, "parse error")
		return
	}

	reqID := uuid.NewString()
	s.logger.Debug("request",
		zap.String("request_id", reqID),
		zap.String("method", req.Method),
	)

	switch req.Method {
	case "tools/call":
		s.handleToolCall(ctx, &req)
	case "resources/read":
		s.handleResourceRead(ctx, &req)
	default:
		result, err := s.backend.Forward(ctx, req.Method, req.Params)
		if req.IsNotification() {
			if err != nil {
				s.logger.Warn("forwarded notification failed",
					zap.String("request_id", reqID),
					zap.String("method", req.Method),
					zap.Error(err),
				)
			}
			return
		}
		if err != nil {
			s.writeRPCFailure(req.ID, err)
			return
		}
		s.writeResult(req.ID, result)
	}
}

func (s *Server) handleToolCall(ctx context.Context, req *mcp.Request) {
	var tr mcp.ToolRequest
	if err := json.Unmarshal(req.Params, &tr); err != nil {
		s.writeError(req.ID, mcp.CodeInvalidParams, "invalid tools/call params")
		return
	}
	resp, err := s.tools(ctx, &tr)
	if err != nil {
		s.writeRPCFailure(req.ID, err)
		return
	}
	result, err := json.Marshal(resp)
	if err != nil {
		s.writeError(req.ID, mcp.CodeInternalError, "response serialization failed")
		return
	}
	s.writeResult(req.ID, result)
}

func (s *Server) handleResourceRead(ctx context.Context, req *mcp.Request) {
	var rr mcp.ResourceRequest
	if err := json.Unmarshal(req.Params, &rr); err != nil {
		s.writeError(req.ID, mcp.CodeInvalidParams, "invalid resources/read params")
		return
	}
	resp, err := s.resources(ctx, &rr)
	if err != nil {
		s.writeRPCFailure(req.ID, err)
		return
	}
	result, err := json.Marshal(resp)
	if err != nil {
		s.writeError(req.ID, mcp.CodeInternalError, "response serialization failed")
		return
	}
	s.writeResult(req.ID, result)
}

// writeRPCFailure converts a pipeline error into a JSON-RPC error
// response, preserving upstream error codes where present.
func (s *Server) writeRPCFailure(id json.RawMessage, err error) {
	var rpcErr *mcp.RPCError
	if errors.As(err, &rpcErr) {
		s.write(&mcp.Response{JSONRPC: mcp.JSONRPCVersion, ID: id, Error: rpcErr})
		return
	}
	s.writeError(id, mcp.CodeInternalError, err.Error())
}

func (s *Server) writeError(id json.RawMessage, code int, message string) {
	s.write(&mcp.Response{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      id,
		Error:   &mcp.RPCError{Code: code, Message: message},
	})
}

func (s *Server) writeResult(id json.RawMessage, result json.RawMessage) {
	s.write(&mcp.Response{JSONRPC: mcp.JSONRPCVersion, ID: id, Result: result})
}

func (s *Server) write(resp *mcp.Response) {
	line, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("response marshal failed", zap.Error(err))
		return
	}
	line = append(line, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(line); err != nil {
		s.logger.Error("response write failed", zap.Error(err))
	}
}
