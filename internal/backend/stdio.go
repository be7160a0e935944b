package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/redactd/redactd/internal/mcp"
)

const (
	// maxLineBytes bounds a single upstream response line.
	maxLineBytes = 16 << 20

	stopTimeout = 3 * time.Second
)

// StdioBackend talks to a spawned subprocess over newline-delimited
// JSON-RPC on its stdin/stdout. The subprocess's stderr is inherited so
// upstream diagnostics stay visible.
type StdioBackend struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	writeMu sync.Mutex
	logger  *zap.Logger

	nextID atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan *mcp.Response

	closed     chan struct{}
	closedOnce sync.Once // guards the closed channel
	stopOnce   sync.Once // guards subprocess teardown
}

// NewStdioBackend spawns command with args and starts the response reader.
func NewStdioBackend(command string, args []string, logger *zap.Logger) (*StdioBackend, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio backend: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio backend: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("stdio backend: start %q: %w", command, err)
	}

	b := &StdioBackend{
		cmd:     cmd,
		stdin:   stdin,
		logger:  logger,
		pending: make(map[int64]chan *mcp.Response),
		closed:  make(chan struct{}),
	}
	go b.readLoop(stdout)
	return b, nil
}

func (b *StdioBackend) CallTool(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	return callTool(ctx, b.Forward, req)
}

func (b *StdioBackend) ReadResource(ctx context.Context, req *mcp.ResourceRequest) (*mcp.ResourceResponse, error) {
	return readResource(ctx, b.Forward, req)
}

// Forward sends one request and waits for its correlated response.
// Cancellation abandons the wait; a late response is discarded by the
// read loop when the pending slot is gone.
func (b *StdioBackend) Forward(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	select {
	case <-b.closed:
		return nil, ErrClosed
	default:
	}

	id := b.nextID.Add(1)
	ch := make(chan *mcp.Response, 1)

	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	line, err := json.Marshal(mcp.Request{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      json.RawMessage(strconv.FormatInt(id, 10)),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}
	line = append(line, '\n')

	b.writeMu.Lock()
	_, err = b.stdin.Write(line)
	b.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("stdio backend: write: %w", err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.closed:
		return nil, ErrClosed
	}
}

// Close shuts the subprocess down: stdin close first so a well-behaved
// server exits on EOF, then a kill after the grace period.
func (b *StdioBackend) Close() error {
	var err error
	b.stopOnce.Do(func() {
		b.closedOnce.Do(func() { close(b.closed) })
		err = b.stdin.Close()

		done := make(chan struct{})
		go func() {
			_ = b.cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(stopTimeout):
			b.logger.Warn("upstream did not exit, killing",
				zap.String("command", b.cmd.Path),
			)
			_ = b.cmd.Process.Kill()
			<-done
		}
	})
	return err
}

func (b *StdioBackend) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp mcp.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			b.logger.Warn("unparseable upstream line", zap.Error(err))
			continue
		}
		if len(resp.ID) == 0 {
			// Server-initiated notification; the proxy does not relay these.
			continue
		}
		id, err := strconv.ParseInt(string(resp.ID), 10, 64)
		if err != nil {
			b.logger.Warn("upstream response with unknown id",
				zap.String("id", string(resp.ID)),
			)
			continue
		}

		b.mu.Lock()
		ch, ok := b.pending[id]
		b.mu.Unlock()
		if !ok {
			continue
		}
		ch <- &resp
	}

	if err := scanner.Err(); err != nil {
		b.logger.Warn("upstream read loop ended", zap.Error(err))
	}
	b.closedOnce.Do(func() { close(b.closed) })
}
