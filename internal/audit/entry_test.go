package audit

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2026, 2, 15, 10, 30, 0, 0, time.UTC)
	if got := FormatTimestamp(ts); got != "2026-02-15T10:30:00.000Z" {
		t.Errorf("FormatTimestamp = %q", got)
	}

	// Non-UTC times normalize to UTC.
	loc := time.FixedZone("CET", 3600)
	ts = time.Date(2026, 2, 15, 11, 30, 0, 500_000_000, loc)
	if got := FormatTimestamp(ts); got != "2026-02-15T10:30:00.500Z" {
		t.Errorf("FormatTimestamp = %q", got)
	}
}

func TestTruncateParams(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"short passes through", `{"a":1}`, `{"a":1}`},
		{"exactly at cap", strings.Repeat("x", MaxInputParams), strings.Repeat("x", MaxInputParams)},
		{"over cap", strings.Repeat("x", MaxInputParams+1), strings.Repeat("x", MaxInputParams) + "...[truncated]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateParams(tt.input); got != tt.want {
				t.Errorf("TruncateParams length %d, want length %d", len(got), len(tt.want))
			}
		})
	}
}

func TestTruncateParams_RuneSafe(t *testing.T) {
	// Fill to just under the cap, then place a multi-byte rune across it.
	s := strings.Repeat("x", MaxInputParams-1) + "日本語"
	got := TruncateParams(s)
	trimmed := strings.TrimSuffix(got, "...[truncated]")
	if trimmed == got {
		t.Fatal("expected truncation")
	}
	if !utf8.ValidString(trimmed) {
		t.Errorf("truncation split a rune: %q", trimmed[len(trimmed)-6:])
	}
	if len(trimmed) > MaxInputParams {
		t.Errorf("kept %d bytes, cap is %d", len(trimmed), MaxInputParams)
	}
}
