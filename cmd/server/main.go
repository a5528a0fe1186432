package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scholarchat-backend/internal/config"
	"scholarchat-backend/internal/database"
	"scholarchat-backend/internal/handlers"
	"scholarchat-backend/internal/logging"
	"scholarchat-backend/internal/middleware"
	"scholarchat-backend/internal/relay"
	"scholarchat-backend/internal/repository"
	"scholarchat-backend/internal/router"
	"scholarchat-backend/internal/services"
	"scholarchat-backend/internal/tools"
	"scholarchat-backend/internal/websocket"
	"scholarchat-backend/internal/worker"
	"scholarchat-backend/migrations"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogJSON)
	logger.Info("starting scholarchat backend", "env", cfg.Env, "model", cfg.GeminiModel)

	ctx := context.Background()

	// ──── Step 2: Page Cache (optional) ────
	fetcherOpts := []services.FetcherOption{}
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("redis connection failed", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		fetcherOpts = append(fetcherOpts, services.WithPageCache(services.NewRedisPageCache(redisClient, cfg.FetchCacheTTL, logger)))
		logger.Info("page cache enabled", "ttl", cfg.FetchCacheTTL)
	}

	// ──── Step 3: Incident Log (optional) ────
	var incidents relay.IncidentRecorder
	if cfg.DatabaseURL != "" {
		pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("postgres connection failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			logger.Error("database migration failed", "err", err)
			os.Exit(1)
		}
		incidentPool := worker.NewPool(repository.NewIncidentRepo(pool), 2, 256, logger)
		incidentPool.Start()
		defer incidentPool.Stop()
		incidents = incidentPool
		logger.Info("moderation incident log enabled")
	}

	// ──── Step 4: Tools and Agent ────
	fetcher := services.NewFetcher(logger, fetcherOpts...)
	registry := tools.NewRegistry(logger, tools.NewResearchTools(fetcher, tools.DefaultSources())...)

	agent, err := services.NewAgentService(cfg, registry, logger)
	if err != nil {
		logger.Error("gemini client initialization failed", "err", err)
		os.Exit(1)
	}
	defer agent.Close()
	logger.Info("agent ready", "tools", len(registry.Names()), "max_tool_rounds", cfg.AgentMaxToolRounds)

	// ──── Step 5: Moderation ────
	moderator := services.NewModerationService(cfg.Moderation, logger)
	logger.Info("moderation configured",
		"enabled", moderator.Enabled(),
		"input", cfg.Moderation.InputActive(),
		"output", cfg.Moderation.OutputActive(),
		"action", string(cfg.Moderation.Action),
	)

	turns := relay.New(cfg.Moderation, agent, moderator, incidents, logger)

	// ──── Step 6: HTTP Server ────
	chatLimiter := middleware.NewRateLimiter(cfg.ChatRateLimitPerMin, time.Minute)
	defer chatLimiter.Stop()

	wsHub := websocket.NewHub(turns, logger)
	r := router.New(
		handlers.NewChatHandler(turns, logger),
		wsHub,
		chatLimiter,
		cfg.CORSOrigins,
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down")
		wsHub.CloseAll()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", "err", err)
		}
	}()

	logger.Info("listening", "addr", server.Addr, "chat", "/api/v1/chat", "ws", "/api/v1/ws")

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
	<-shutdownDone
}
