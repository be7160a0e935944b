package audit

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// ClickHouseSink mirrors audit entries into ClickHouse asynchronously.
// Emit is non-blocking: entries are buffered and batch-inserted in a
// background goroutine, and dropped with a warning when the buffer fills.
// The primary JSONL sink stays authoritative; this sink exists for
// retention and analytics.
type ClickHouseSink struct {
	conn    driver.Conn
	buffer  chan *Entry
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	logger  *zap.Logger
}

// NewClickHouseSink connects to ClickHouse and starts the background
// flush loop.
func NewClickHouseSink(dsn string, logger *zap.Logger) (*ClickHouseSink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	// ParseDSN sets TLS when ?secure=true is present; enforce a config so
	// cloud endpoints on TLS ports work either way.
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	s := &ClickHouseSink{
		conn:    conn,
		buffer:  make(chan *Entry, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}
	go s.flushLoop()
	return s, nil
}

func (s *ClickHouseSink) Emit(e *Entry) {
	select {
	case s.buffer <- e:
	default:
		s.logger.Warn("clickhouse audit buffer full, dropping entry",
			zap.String("upstream_tool", e.UpstreamTool),
		)
	}
}

// Close signals the flush loop to drain remaining entries, waits for it
// to finish, then closes the connection. Safe to call once.
func (s *ClickHouseSink) Close() error {
	close(s.done)
	<-s.flushed
	return s.conn.Close()
}

func (s *ClickHouseSink) flushLoop() {
	defer close(s.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, flushBatch)

	for {
		select {
		case e := <-s.buffer:
			batch = append(batch, e)
			if len(batch) >= flushBatch {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-s.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case e := <-s.buffer:
					batch = append(batch, e)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				s.flush(batch)
			}
			return
		}
	}
}

func (s *ClickHouseSink) flush(entries []*Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO audit_log (
			event_id, timestamp, upstream_tool, compliance_profile,
			input_parameters, output_size_bytes, redaction_count,
			redacted_types, execution_time_ms, status, error
		)
	`)
	if err != nil {
		s.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range entries {
		ts, perr := time.Parse(timestampLayout, e.Timestamp)
		if perr != nil {
			s.logger.Warn("unparseable audit timestamp", zap.String("timestamp", e.Timestamp))
		}
		if err := batch.Append(
			uuid.NewString(),
			ts,
			e.UpstreamTool,
			e.ComplianceProfile,
			e.InputParameters,
			uint64(e.OutputSizeBytes),
			uint32(e.RedactionCount),
			e.RedactedTypes,
			uint64(e.ExecutionTimeMS),
			e.Status,
			e.Error,
		); err != nil {
			s.logger.Error("clickhouse append entry failed", zap.Error(err))
		}
	}

	if err := batch.Send(); err != nil {
		s.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(entries)),
			zap.Error(err),
		)
	}
}
