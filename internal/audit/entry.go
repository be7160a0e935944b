// Package audit defines the per-invocation audit record and the sinks it
// is written to. Entries are built by the audit middleware after the PII
// middleware has run, so serialized entries never contain raw PII.
package audit

import (
	"time"
	"unicode/utf8"
)

// StatusSuccess and StatusError are the only audit statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// MaxInputParams is the byte cap applied to serialized invocation
// arguments before they are stored on an entry.
const MaxInputParams = 500

// truncationSuffix marks a capped input_parameters value.
const truncationSuffix = "...[truncated]"

// Entry is one audit record per tool invocation. Field order matches the
// emitted JSON.
type Entry struct {
	Timestamp         string   `json:"timestamp"`
	UpstreamTool      string   `json:"upstream_tool"`
	ComplianceProfile string   `json:"compliance_profile"`
	InputParameters   string   `json:"input_parameters"`
	OutputSizeBytes   int      `json:"output_size_bytes"`
	RedactionCount    int      `json:"redaction_count"`
	RedactedTypes     []string `json:"redacted_types"`
	ExecutionTimeMS   int64    `json:"execution_time_ms"`
	Status            string   `json:"status"`
	Error             string   `json:"error,omitempty"`
}

// Timestamp format: UTC ISO 8601 with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t for the timestamp field.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// TruncateParams caps a serialized argument string at MaxInputParams
// bytes, backing off to a rune boundary, and appends the truncation
// marker when anything was cut.
func TruncateParams(s string) string {
	if len(s) <= MaxInputParams {
		return s
	}
	cut := MaxInputParams
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationSuffix
}
