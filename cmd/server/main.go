package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/bloktest/session-backend/internal/config"
	"github.com/bloktest/session-backend/internal/database"
	"github.com/bloktest/session-backend/internal/gateway"
	"github.com/bloktest/session-backend/internal/handler"
	"github.com/bloktest/session-backend/internal/logger"
	"github.com/bloktest/session-backend/internal/repository"
	"github.com/bloktest/session-backend/internal/router"
	"github.com/bloktest/session-backend/internal/service"
	"github.com/bloktest/session-backend/internal/session"
	"github.com/bloktest/session-backend/internal/store"
	"github.com/bloktest/session-backend/internal/validator"
	"github.com/bloktest/session-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("gateway", cfg.GatewayBaseURL).
		Msg("Starting BlokTest Session Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Outbound Gateway Client ───────────────────────────────────────
	gw := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayTimeout, log)

	// ─── Repositories and Stores ───────────────────────────────────────
	attemptRepo := repository.NewAttemptRepository(pool)
	snapshotStore := store.NewRedisSnapshotStore(rdb)

	// ─── Queues and Session Manager ────────────────────────────────────
	progressQueue := worker.NewRedisProgressQueue(rdb, log)
	attemptRecorder := worker.NewRedisAttemptRecorder(rdb, log)

	sessions := session.NewManager(session.ManagerOptions{
		Gateway:       gw,
		Store:         snapshotStore,
		Queue:         progressQueue,
		Outbox:        attemptRepo,
		Recorder:      attemptRecorder,
		Log:           log,
		Duration:      int(cfg.SessionDuration.Seconds()),
		AutosaveEvery: int(cfg.AutosaveInterval.Seconds()),
	})

	// ─── Services ──────────────────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb, gw)

	// ─── Handlers ──────────────────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:  handler.NewAuthHandler(authService, gw, sessions),
		Quiz:  handler.NewQuizHandler(sessions, attemptRepo),
		Block: handler.NewBlockHandler(gw),
		WS:    handler.NewWSHandler(sessions, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	progressWorker := worker.NewProgressWorker(rdb, gw, log)
	attemptWorker := worker.NewAttemptWorker(pool, rdb, log)

	go progressWorker.Start(workerCtx)
	go attemptWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop running sessions; each gets its final progress flush.
	sessions.StopAll()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
