package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/brototype/portal-backend/internal/config"
	"github.com/brototype/portal-backend/internal/database"
	"github.com/brototype/portal-backend/internal/handler"
	"github.com/brototype/portal-backend/internal/logger"
	"github.com/brototype/portal-backend/internal/repository"
	"github.com/brototype/portal-backend/internal/router"
	"github.com/brototype/portal-backend/internal/service"
	"github.com/brototype/portal-backend/internal/validator"
	"github.com/brototype/portal-backend/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting portal backend")

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

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)
	passcodeRepo := repository.NewPasscodeRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	mailer, err := service.NewMailer(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure mailer")
	}
	authService := service.NewAuthService(cfg, rdb, userRepo, mailer, log)
	passcodeService := service.NewPasscodeService(passcodeRepo, log)

	// ─── Background Workers ────────────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	reconcileWorker := worker.NewPasscodeReconcileWorker(passcodeRepo, rdb, cfg.PasscodeRetryAttempts, log)
	workers.Add(1)
	go func() {
		defer workers.Done()
		reconcileWorker.Start(workerCtx)
	}()

	// ─── Initialize Handlers ──────────────────────────────────────────
	authDeps := &handler.AuthDeps{
		Backend:          authService,
		Passcodes:        passcodeRepo,
		Roles:            profileRepo,
		OnConsumeFailure: reconcileWorker.Enqueue,
		ResetRedirect:    cfg.ResetRedirectURL(),
		Log:              log,
	}

	handlers := &router.Handlers{
		Auth:     handler.NewAuthHandler(authDeps),
		Passcode: handler.NewPasscodeHandler(passcodeService, log),
		WS:       handler.NewWSHandler(authDeps, log, cfg.AllowedOrigins),
		System:   handler.NewSystemHandler(pool, rdb, log),
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	guards := router.Guards{
		Auth:  authService,
		Admin: service.NewAdminGate(profileRepo),
	}
	r := router.SetupRouter(guards, handlers, rdb, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
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

	// 2. Stop background workers. Queued retries stay in Redis for the
	// next start.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
