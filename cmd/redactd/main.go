package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/redactd/redactd/internal/audit"
	"github.com/redactd/redactd/internal/backend"
	"github.com/redactd/redactd/internal/config"
	"github.com/redactd/redactd/internal/middleware"
	"github.com/redactd/redactd/internal/ner"
	"github.com/redactd/redactd/internal/profile"
	"github.com/redactd/redactd/internal/server"
	"github.com/redactd/redactd/internal/store"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "redactd:", err)
		os.Exit(1)
	}

	// Logger — stderr only, stdout carries the MCP wire.
	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("starting redactd",
		zap.String("compliance_profile", cfg.Profile),
		zap.Bool("audit_enabled", cfg.AuditEnabled),
		zap.Bool("comprehend_enabled", cfg.ComprehendEnabled),
	)

	// Profile registry — built-ins plus operator-defined sources.
	registry := profile.NewRegistry(logger)
	if cfg.ProfileConfigFile != "" {
		profiles, err := profile.LoadFile(cfg.ProfileConfigFile)
		if err != nil {
			logger.Fatal("profile config unreadable", zap.Error(err))
		}
		for _, p := range profiles {
			if err := registry.Register(p); err != nil {
				logger.Fatal("profile config rejected", zap.Error(err))
			}
		}
		logger.Info("loaded profile config file",
			zap.String("path", cfg.ProfileConfigFile),
			zap.Int("profiles", len(profiles)),
		)
	}
	if cfg.PostgresDSN != "" {
		if err := loadStoreProfiles(ctx, cfg.PostgresDSN, registry, logger); err != nil {
			logger.Fatal("postgres profile load failed", zap.Error(err))
		}
	}
	prof := registry.Get(cfg.Profile)

	// Stage 2 NER client, gated on the profile and the feature flag.
	var nerRedactor *ner.Redactor
	if prof.Stage2 && cfg.ComprehendEnabled {
		client, err := ner.NewComprehendClient(ctx, cfg.AWSRegion)
		if err != nil {
			logger.Fatal("comprehend client failed", zap.Error(err))
		}
		nerRedactor = ner.NewRedactor(client, prof.EntityTypes, logger)
		logger.Info("stage 2 redaction enabled", zap.String("region", cfg.AWSRegion))
	}

	// Audit sink. When auditing is off the middleware still runs with a
	// no-op sink so timing and summary collection behave identically.
	var sink audit.Sink = audit.NopSink{}
	if cfg.AuditEnabled {
		sinks := []audit.Sink{audit.NewJSONLSink(os.Stderr, logger)}
		if cfg.ClickHouseDSN != "" {
			ch, err := audit.NewClickHouseSink(cfg.ClickHouseDSN, logger)
			if err != nil {
				logger.Warn("clickhouse audit sink unavailable", zap.Error(err))
			} else {
				sinks = append(sinks, ch)
				logger.Info("clickhouse audit sink connected")
			}
		}
		if len(sinks) == 1 {
			sink = sinks[0]
		} else {
			sink = audit.NewMultiSink(sinks...)
		}
	}
	defer func() { _ = sink.Close() }()

	// Upstream backend.
	var be backend.Backend
	if cfg.UpstreamCommand != "" {
		be, err = backend.NewStdioBackend(cfg.UpstreamCommand, cfg.UpstreamArgs, logger)
		if err != nil {
			logger.Fatal("upstream spawn failed", zap.Error(err))
		}
		logger.Info("upstream spawned", zap.String("command", cfg.UpstreamCommand))
	} else {
		be = backend.NewHTTPBackend(cfg.UpstreamURL)
		logger.Info("upstream http backend", zap.String("url", cfg.UpstreamURL))
	}
	defer func() { _ = be.Close() }()

	// Pipelines. Audit is outermost so its post-processing only ever sees
	// responses the PII layer has already rewritten.
	tools := middleware.Chain([]middleware.ToolMiddleware{
		middleware.Audit(sink, prof.Name, logger),
		middleware.PIITool(prof, nerRedactor, logger),
	}, be.CallTool)
	resources := middleware.Chain([]middleware.ResourceMiddleware{
		middleware.PIIResource(prof, nerRedactor, logger),
	}, be.ReadResource)

	srv := server.New(os.Stdin, os.Stdout, be, tools, resources, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		if err != nil {
			logger.Error("server loop failed", zap.Error(err))
		}
	}

	logger.Info("redactd stopped")
}

// loadStoreProfiles reads operator-defined profiles from Postgres and
// registers them. The connection is only needed at startup; profiles are
// immutable afterwards.
func loadStoreProfiles(ctx context.Context, dsn string, registry *profile.Registry, logger *zap.Logger) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return err
	}

	profiles, err := store.NewStore(db).ListProfiles(ctx)
	if err != nil {
		return err
	}
	for _, p := range profiles {
		if err := registry.Register(p); err != nil {
			return err
		}
	}
	logger.Info("loaded postgres profiles", zap.Int("profiles", len(profiles)))
	return nil
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
