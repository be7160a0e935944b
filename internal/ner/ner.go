// Package ner implements contextual PII redaction on top of a named-entity
// recognition provider. It chunks long text to the provider's size limit,
// short-circuits on a cheap pre-filter, and splices [REDACTED:<TYPE>]
// markers over detected spans.
package ner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// maxChunkBytes is the largest UTF-8 payload sent to the provider in one
// call, and also the pre-filter probe size.
const maxChunkBytes = 4500

// language is the document language hint passed to the provider.
const language = "en"

// Entity is one PII span located by the provider. Offsets are positions
// into the submitted chunk as reported by the provider; the wrapper treats
// them as opaque valid string indices.
type Entity struct {
	Type        string
	BeginOffset int
	EndOffset   int
}

// Client is the abstract NER provider handle. Implementations must be safe
// for concurrent use.
type Client interface {
	// ContainsPII is the cheap probe: returns the PII labels present in
	// text, or an empty slice when the text is clean.
	ContainsPII(ctx context.Context, text, language string) ([]string, error)

	// DetectPII locates PII entity spans in text.
	DetectPII(ctx context.Context, text, language string) ([]Entity, error)
}

// DefaultEntityTypes is the set of entity categories replaced when a
// profile does not restrict them. Categories already covered by the
// pattern stage (cards, bank routing, SSN, email, phone) are excluded.
var DefaultEntityTypes = []string{
	"NAME",
	"ADDRESS",
	"DATE_TIME",
	"AGE",
	"USERNAME",
	"PASSWORD",
	"IP_ADDRESS",
	"BANK_ACCOUNT_NUMBER",
	"PASSPORT_NUMBER",
	"DRIVER_ID",
	"AWS_ACCESS_KEY",
	"MAC_ADDRESS",
}

// Redactor drives the two provider operations to redact free text.
type Redactor struct {
	client  Client
	allowed map[string]struct{}
	logger  *zap.Logger
}

// NewRedactor builds a redactor over client. entityTypes restricts which
// detected categories are replaced; nil means DefaultEntityTypes.
func NewRedactor(client Client, entityTypes []string, logger *zap.Logger) *Redactor {
	if entityTypes == nil {
		entityTypes = DefaultEntityTypes
	}
	allowed := make(map[string]struct{}, len(entityTypes))
	for _, t := range entityTypes {
		allowed[t] = struct{}{}
	}
	return &Redactor{client: client, allowed: allowed, logger: logger}
}

// RedactText masks PII entity spans in text. It returns the masked text,
// the number of spans replaced, and the entity types that fired.
//
// Provider failures propagate to the caller; no retry happens here. The
// text is never returned half-processed: a failure mid-chunk aborts the
// whole call.
func (r *Redactor) RedactText(ctx context.Context, text string) (string, int, []string, error) {
	if text == "" {
		return text, 0, nil, nil
	}

	labels, err := r.client.ContainsPII(ctx, probePrefix(text), language)
	if err != nil {
		return "", 0, nil, fmt.Errorf("ner pre-filter: %w", err)
	}
	if len(labels) == 0 {
		return text, 0, nil, nil
	}

	chunks := chunkText(text)
	redacted := make([]string, 0, len(chunks))
	count := 0
	typeSet := make(map[string]struct{})

	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return "", 0, nil, err
		}
		entities, err := r.client.DetectPII(ctx, chunk, language)
		if err != nil {
			return "", 0, nil, fmt.Errorf("ner detect: %w", err)
		}
		masked, n, types := r.redactChunk(chunk, entities)
		redacted = append(redacted, masked)
		count += n
		for _, t := range types {
			typeSet[t] = struct{}{}
		}
	}

	types := make([]string, 0, len(typeSet))
	for t := range typeSet {
		types = append(types, t)
	}
	sort.Strings(types)
	return strings.Join(redacted, "\n"), count, types, nil
}

// redactChunk replaces allowed entity spans in descending begin-offset
// order so earlier offsets stay valid as the string shrinks or grows.
// A chunk with any out-of-range span of an allowed type is returned
// unchanged rather than partially processed; spans of other types are
// ignored without a range check.
func (r *Redactor) redactChunk(chunk string, entities []Entity) (string, int, []string) {
	spans := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if _, ok := r.allowed[e.Type]; !ok {
			continue
		}
		if e.BeginOffset < 0 || e.EndOffset > len(chunk) || e.BeginOffset >= e.EndOffset {
			r.logger.Warn("ner entity span out of range, leaving chunk unredacted",
				zap.String("entity_type", e.Type),
				zap.Int("begin", e.BeginOffset),
				zap.Int("end", e.EndOffset),
				zap.Int("chunk_len", len(chunk)),
			)
			return chunk, 0, nil
		}
		spans = append(spans, e)
	}
	if len(spans) == 0 {
		return chunk, 0, nil
	}

	sort.Slice(spans, func(i, j int) bool {
		return spans[i].BeginOffset > spans[j].BeginOffset
	})

	var types []string
	seen := make(map[string]struct{})
	for _, e := range spans {
		chunk = chunk[:e.BeginOffset] + "[REDACTED:" + e.Type + "]" + chunk[e.EndOffset:]
		if _, ok := seen[e.Type]; !ok {
			seen[e.Type] = struct{}{}
			types = append(types, e.Type)
		}
	}
	return chunk, len(spans), types
}

// probePrefix returns at most maxChunkBytes of text without splitting a
// UTF-8 sequence.
func probePrefix(text string) string {
	if len(text) <= maxChunkBytes {
		return text
	}
	return text[:safeCut(text, maxChunkBytes)]
}

// chunkText splits text into pieces of at most maxChunkBytes, preferring
// newline boundaries. A single line over the limit is split at byte-safe
// points inside the line. Chunks are rejoined with "\n" after redaction.
func chunkText(text string) []string {
	lines := strings.Split(text, "\n")
	var chunks []string
	var cur strings.Builder
	started := false

	flush := func() {
		if started {
			chunks = append(chunks, cur.String())
			cur.Reset()
			started = false
		}
	}

	for _, line := range lines {
		if len(line) > maxChunkBytes {
			flush()
			for len(line) > maxChunkBytes {
				cut := safeCut(line, maxChunkBytes)
				chunks = append(chunks, line[:cut])
				line = line[cut:]
			}
			cur.WriteString(line)
			started = true
			continue
		}
		switch {
		case !started:
			cur.WriteString(line)
			started = true
		case cur.Len()+1+len(line) <= maxChunkBytes:
			cur.WriteByte('\n')
			cur.WriteString(line)
		default:
			flush()
			cur.WriteString(line)
			started = true
		}
	}
	flush()
	return chunks
}

// safeCut finds the largest split point <= limit that does not land inside
// a multi-byte UTF-8 sequence.
func safeCut(s string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		// Degenerate input; fall back to the hard limit.
		return limit
	}
	return cut
}
