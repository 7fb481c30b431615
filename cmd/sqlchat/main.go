package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sqlchat/sqlchat/internal/anthropic"
	"github.com/sqlchat/sqlchat/internal/api"
	"github.com/sqlchat/sqlchat/internal/assistant"
	"github.com/sqlchat/sqlchat/internal/backend"
	"github.com/sqlchat/sqlchat/internal/backend/direct"
	"github.com/sqlchat/sqlchat/internal/backend/mcpbackend"
	"github.com/sqlchat/sqlchat/internal/config"
	"github.com/sqlchat/sqlchat/internal/events"
	"github.com/sqlchat/sqlchat/internal/mcp"
	"github.com/sqlchat/sqlchat/internal/observability"
	"github.com/sqlchat/sqlchat/internal/session"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("sqlchat starting", "port", cfg.Port, "backend", cfg.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Anthropic client
	if cfg.AnthropicAPIKey == "" {
		slog.Error("ANTHROPIC_API_KEY is required")
		os.Exit(1)
	}
	llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	slog.Info("anthropic client ready", "model", cfg.AnthropicModel)

	metrics := observability.NewMetrics()

	// Query backend (optional: the assistant still answers without one,
	// extracted queries are just never executed)
	var be backend.Backend
	switch cfg.Backend {
	case "mcp":
		command, args, err := cfg.MCPServerArgs()
		if err != nil {
			slog.Error("mcp backend misconfigured", "error", err)
			os.Exit(1)
		}
		client := mcp.NewClient(command, args, slog.Default())
		mb := mcpbackend.New(client, slog.Default())
		if err := mb.Connect(ctx, backend.AuthPassword); err != nil {
			slog.Error("failed to start mcp server", "error", err)
			os.Exit(1)
		}
		metrics.ProtocolServerStarted()
		be = mb
		slog.Info("mcp backend ready", "command", command)
	case "direct":
		if cfg.DBJDBCURL == "" {
			slog.Warn("DB_JDBC_URL not set, running without a database")
			break
		}
		db, err := direct.New(cfg.DBJDBCURL, cfg.DBUser, cfg.DBPassword, slog.Default())
		if err != nil {
			slog.Error("invalid database configuration", "error", err)
			os.Exit(1)
		}
		ok, mode := db.TestConnection(ctx)
		if !ok {
			slog.Error("database unreachable", "detail", mode)
			os.Exit(1)
		}
		be = db
		slog.Info("database connected", "auth", mode)
	default:
		slog.Error("unknown backend", "backend", cfg.Backend)
		os.Exit(1)
	}
	if be != nil {
		defer be.Disconnect(context.Background())
	}

	// NATS events (optional: sqlchat works without a bus, just no events)
	var publisher events.Publisher
	if cfg.NatsURL != "" {
		eventsClient, err := events.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer eventsClient.Close()
		publisher = eventsClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, running without turn events")
	}

	asst := assistant.New(llm, slog.Default(), metrics)
	sessions := session.NewMemoryStore()

	srv := api.NewServer(cfg.Port, asst, be, sessions, publisher, metrics, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("sqlchat ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("sqlchat stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
