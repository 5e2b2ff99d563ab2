// synctest connects to a repair tracker WebSocket endpoint and streams
// decoded envelopes to the console.
//
// Usage: go run ./cmd/synctest --url wss://tracker.example.com/ws --channels main:lists,main:orders
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/repairtracker/repairsync/internal/connection"
	"github.com/repairtracker/repairsync/internal/realtime"
	"github.com/repairtracker/repairsync/internal/wire"
)

func main() {
	url := flag.String("url", "", "WebSocket URL (ws:// or wss://)")
	channels := flag.String("channels", "main:lists,main:orders", "comma-separated channels to subscribe")
	verbose := flag.Bool("verbose", false, "print full envelope JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	if *url == "" {
		logger.Error("--url is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	client := realtime.NewClient(connection.DefaultConfig(*url), logger)
	defer client.Close()

	printEnvelope := func(env wire.Envelope) {
		if *verbose {
			raw, err := env.Encode()
			if err != nil {
				logger.Error("encode envelope", "error", err)
				return
			}
			var pretty map[string]any
			json.Unmarshal(raw, &pretty)
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(out))
			return
		}
		fmt.Printf("[%s] %s (%d bytes)\n", env.Channel, env.Type, len(env.Data))
	}

	for _, ch := range strings.Split(*channels, ",") {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		client.Subscribe(ch, printEnvelope)
		logger.Info("subscribed", "channel", ch)
	}

	// Server error notices arrive unprompted on the private channel.
	client.Subscribe(wire.MessagesChannel, func(env wire.Envelope) {
		logger.Warn("server notice", "message", env.Message, "websocket_id", env.WebsocketID)
	})

	// Report lifecycle transitions while streaming.
	go func() {
		for state := range client.States() {
			logger.Info("connection state", "state", state)
		}
	}()

	// Application-level keepalive alongside the transport pings.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := client.Ping(); err != nil {
					logger.Debug("keepalive ping not sent", "error", err)
				}
			}
		}
	}()

	if err := client.Connect(ctx); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected", "session_id", client.SessionID())

	<-ctx.Done()
	logger.Info("shutting down")
}
