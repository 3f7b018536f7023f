package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackpilot/hackpilot/internal/config"
	"github.com/hackpilot/hackpilot/internal/conversation"
	"github.com/hackpilot/hackpilot/internal/database"
	"github.com/hackpilot/hackpilot/internal/executor"
	"github.com/hackpilot/hackpilot/internal/llm"
	"github.com/hackpilot/hackpilot/internal/logger"
	"github.com/hackpilot/hackpilot/internal/models"
	"github.com/hackpilot/hackpilot/internal/platform"
	"github.com/hackpilot/hackpilot/internal/router"
	"github.com/hackpilot/hackpilot/internal/scheduler"
	"github.com/hackpilot/hackpilot/internal/secrets"
	"github.com/hackpilot/hackpilot/internal/server"
	"github.com/hackpilot/hackpilot/internal/usage"
	ws "github.com/hackpilot/hackpilot/internal/websocket"
)

var version = "dev"

func main() {
	if len(os.Args) == 2 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Println("hackpilot " + version)
		os.Exit(0)
	}

	logger.Banner()

	cfg := config.Load()

	db, err := database.New(cfg.DataDir)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Resolve encryption key: env var > database > generate and persist
	encKey := cfg.EncryptionKey
	if encKey == "" {
		var stored string
		err := db.QueryRow("SELECT value FROM settings WHERE key = 'encryption_key'").Scan(&stored)
		if err == nil && stored != "" {
			encKey = stored
		} else {
			encKey, err = secrets.GenerateKey()
			if err != nil {
				logger.Fatal("Failed to generate encryption key: %v", err)
			}
			if _, err := db.Exec("INSERT INTO settings (id, key, value) VALUES (?, 'encryption_key', ?)",
				"encryption-key", encKey); err != nil {
				logger.Fatal("Failed to persist encryption key: %v", err)
			}
			logger.Success("Generated and persisted encryption key")
		}
	}
	secretStore := secrets.NewStore(db, secrets.NewManager(encKey))

	meter := usage.NewMeter(cfg.DataDir, usage.Limits{
		RequestLimit: cfg.DailyRequestLimit,
		TokenBudget:  cfg.DailyTokenBudget,
		CostCapUSD:   cfg.DailyCostCapUSD,
	}, cfg.MeteringEnabled, cfg.AIDisabled)

	client := llm.NewClient(cfg.OllamaURL, cfg.OpenAIBaseURL, meter)
	if key, err := secretStore.Get(secrets.KindOpenAIKey); err == nil {
		client.UpdateAPIKey(key)
		logger.Info("Hosted backend key loaded from secret store")
	}

	wsHub := ws.NewHub(cfg.Port)
	go wsHub.Run()

	meter.OnChange = func(snap usage.Snapshot) {
		wsHub.Broadcast(models.WSUsageUpdated, snap)
	}

	manager := conversation.NewManager(conversation.NewStore(db), wsHub)
	if _, err := manager.Resume(); err != nil {
		logger.Fatal("Failed to resume session: %v", err)
	}

	exec := executor.New(cfg.WorkDir, time.Duration(cfg.CommandTimeoutSeconds)*time.Second, cfg.MaxOutputBytes)
	cmdRouter := router.New(cfg, db, manager, client, exec, meter, secretStore)

	sched := scheduler.New(db, meter)
	if err := sched.Start(); err != nil {
		logger.Fatal("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	srv := server.New(server.Config{
		Cfg:     cfg,
		DB:      db,
		Manager: manager,
		Client:  client,
		Meter:   meter,
		Secrets: secretStore,
		Cmd:     cmdRouter,
		Hub:     wsHub,
	})

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	if cfg.BindAddress != "127.0.0.1" && cfg.BindAddress != "localhost" {
		logger.Warn("Binding to %s — accessible from the network. Use HACKPILOT_BIND=127.0.0.1 for localhost-only.", cfg.BindAddress)
	}
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // intentionally zero for WebSocket support
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		url := fmt.Sprintf("http://localhost:%d", cfg.Port)
		logger.Listen(addr, url, cfg.Port)
		if os.Getenv("HACKPILOT_NO_OPEN") != "1" {
			platform.OpenBrowser(url)
		}
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	<-done
	logger.Shutdown("Shutting down server...")

	wsHub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error: %v", err)
	}
	logger.Bye()
}
