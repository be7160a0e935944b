// Package config reads the proxy's configuration from the environment.
package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoUpstream is the terminal startup error for a missing upstream
// target.
var ErrNoUpstream = errors.New("config: either UPSTREAM_MCP_COMMAND or UPSTREAM_MCP_URL must be set")

// Config holds everything read from the environment at startup.
type Config struct {
	UpstreamCommand string
	UpstreamArgs    []string
	UpstreamURL     string

	Profile           string
	AuditEnabled      bool
	ComprehendEnabled bool
	AWSRegion         string

	ClickHouseDSN     string
	PostgresDSN       string
	ProfileConfigFile string

	LogLevel string
}

// FromEnv parses the environment. A missing upstream target is an error;
// everything else has a default.
func FromEnv() (*Config, error) {
	cfg := &Config{
		UpstreamCommand:   os.Getenv("UPSTREAM_MCP_COMMAND"),
		UpstreamArgs:      strings.Fields(os.Getenv("UPSTREAM_MCP_ARGS")),
		UpstreamURL:       os.Getenv("UPSTREAM_MCP_URL"),
		Profile:           envOrDefault("COMPLIANCE_PROFILE", "GDPR"),
		AuditEnabled:      os.Getenv("AUDIT_ENABLED") != "false",
		ComprehendEnabled: os.Getenv("COMPREHEND_ENABLED") == "true",
		AWSRegion:         envOrDefault("AWS_REGION", "us-east-1"),
		ClickHouseDSN:     os.Getenv("AUDIT_CLICKHOUSE_DSN"),
		PostgresDSN:       os.Getenv("POSTGRES_DSN"),
		ProfileConfigFile: os.Getenv("PROFILE_CONFIG_FILE"),
		LogLevel:          envOrDefault("REDACTD_LOG_LEVEL", "info"),
	}
	if cfg.UpstreamCommand == "" && cfg.UpstreamURL == "" {
		return nil, ErrNoUpstream
	}
	return cfg, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
