package audit

import (
	"encoding/json"
	"io"
	"sync"

	"go.uber.org/zap"
)

// maxLineBytes guards the write-out path: an entry that serializes beyond
// this is dropped with a warning instead of flooding the stream. Input
// parameters are already capped upstream, so this only fires on
// pathological error messages or type lists.
const maxLineBytes = 1 << 20

// Sink receives finished audit entries. Emit must be safe for concurrent
// use and must write each entry atomically with respect to other entries.
type Sink interface {
	Emit(e *Entry)
	Close() error
}

// JSONLSink writes one JSON object per line to w, flushing each entry as
// a single Write call so concurrent emissions never interleave.
type JSONLSink struct {
	mu     sync.Mutex
	w      io.Writer
	logger *zap.Logger
}

// NewJSONLSink creates a line-oriented sink over w.
func NewJSONLSink(w io.Writer, logger *zap.Logger) *JSONLSink {
	return &JSONLSink{w: w, logger: logger}
}

func (s *JSONLSink) Emit(e *Entry) {
	if e.RedactedTypes == nil {
		e.RedactedTypes = []string{}
	}
	line, err := json.Marshal(e)
	if err != nil {
		s.logger.Error("audit entry marshal failed", zap.Error(err))
		return
	}
	if len(line) > maxLineBytes {
		s.logger.Warn("audit entry over size guard, dropping",
			zap.Int("size", len(line)),
			zap.String("upstream_tool", e.UpstreamTool),
		)
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(line); err != nil {
		s.logger.Error("audit write failed", zap.Error(err))
	}
}

func (s *JSONLSink) Close() error { return nil }

// NopSink discards entries; installed when auditing is disabled so the
// middleware keeps timing and summary collection without emission.
type NopSink struct{}

func (NopSink) Emit(*Entry) {}

func (NopSink) Close() error { return nil }

// MultiSink fans one entry out to several sinks in order.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink composes sinks; Close closes each one.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Emit(e *Entry) {
	for _, s := range m.sinks {
		s.Emit(e)
	}
}

func (m *MultiSink) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
