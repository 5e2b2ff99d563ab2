// mirror is the headless sync client: it subscribes to repair tracker
// channels and archives every order and unit change into PostgreSQL.
//
// Usage: go run ./cmd/mirror --config configs/mirror.local.yaml
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/repairtracker/repairsync/internal/archive"
	"github.com/repairtracker/repairsync/internal/config"
	"github.com/repairtracker/repairsync/internal/connection"
	"github.com/repairtracker/repairsync/internal/realtime"
	"github.com/repairtracker/repairsync/internal/version"
	"github.com/repairtracker/repairsync/internal/wire"
)

func main() {
	configPath := flag.String("config", "configs/mirror.local.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting mirror",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// .env is optional; config expansion picks the variables up.
	if err := godotenv.Load(); err == nil {
		logger.Info("loaded .env file")
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"server_url", cfg.Server.URL,
		"channels", cfg.Channels,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := archive.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	writer := archive.NewWriter(archive.WriterConfig{
		BatchSize:     cfg.Archive.BatchSize,
		FlushInterval: cfg.Archive.FlushInterval,
	}, pool, logger)
	if err := writer.Start(ctx); err != nil {
		logger.Error("failed to start archive writer", "error", err)
		os.Exit(1)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		writer.Stop(stopCtx)
	}()

	client := realtime.NewClient(connection.Config{
		URL:                  cfg.Server.URL,
		HandshakeTimeout:     cfg.Server.HandshakeTimeout,
		WriteTimeout:         cfg.Server.WriteTimeout,
		PingInterval:         cfg.Server.PingInterval,
		BufferSize:           cfg.Server.BufferSize,
		ReconnectBaseDelay:   cfg.Reconnect.BaseDelay,
		MaxReconnectAttempts: cfg.Reconnect.MaxAttempts,
	}, logger)
	defer client.Close()

	for _, ch := range cfg.Channels {
		client.Subscribe(ch, writer.HandleEnvelope)
		if ch != wire.MainOrdersChannel && !strings.HasPrefix(ch, "order:") {
			logger.Debug("channel subscribed for latest-view only", "channel", ch)
		}
	}
	client.Subscribe(wire.MessagesChannel, func(env wire.Envelope) {
		logger.Warn("server notice", "message", env.Message, "websocket_id", env.WebsocketID)
	})

	if err := client.Connect(ctx); err != nil {
		logger.Error("initial connect failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected", "session_id", client.SessionID())

	// When automatic reconnection exhausts its attempts, keep trying at a
	// slow cadence until the server comes back or we shut down.
	go func() {
		for state := range client.States() {
			logger.Info("connection state", "state", state)
			if state == connection.StateDisconnected && client.Exhausted() {
				logger.Error("reconnect attempts exhausted, retrying in 1m")
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Minute):
				}
				if err := client.Connect(ctx); err != nil {
					logger.Error("reconnect failed", "error", err)
				}
			}
		}
	}()

	// Periodic archive stats.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := writer.Stats()
				logger.Info("archive stats",
					"upserts", stats.Upserts,
					"deletes", stats.Deletes,
					"flushes", stats.Flushes,
					"errors", stats.Errors,
					"dropped", stats.Dropped,
					"connected", client.Connected(),
				)
			}
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
}
