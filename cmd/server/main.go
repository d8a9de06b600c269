// Package main is the entrypoint for the CodeLens API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codelensdev/codelens/internal/analysis"
	"github.com/codelensdev/codelens/internal/api"
	"github.com/codelensdev/codelens/internal/api/handler"
	mw "github.com/codelensdev/codelens/internal/api/middleware"
	"github.com/codelensdev/codelens/internal/api/response"
	"github.com/codelensdev/codelens/internal/auth"
	"github.com/codelensdev/codelens/internal/cache"
	"github.com/codelensdev/codelens/internal/config"
	"github.com/codelensdev/codelens/internal/llm"
	"github.com/codelensdev/codelens/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "llm_service", cfg.LLM.BaseURL, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Wire services
	pgStore := store.NewPostgresStore(pool)
	llmClient := llm.NewHTTPClient(cfg.LLM.BaseURL, cfg.LLM.Timeout)
	authService := auth.NewService(pgStore, cfg.Auth)
	analysisService := analysis.NewService(pgStore, llmClient, redisCache,
		cfg.LLM.Timeout, cfg.Analysis.StatusCacheTTL, cfg.Analysis.MaxConcurrent)

	// 6. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(authService),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Analysis.RatePerMinute),

		HealthHandler: healthHandler(pgStore, redisCache),

		RegisterHandler: handler.NewRegisterHandler(authService),
		LoginHandler:    handler.NewLoginHandler(authService),
		MeHandler:       handler.NewMeHandler(authService),

		SubmitHandler:        handler.NewSubmitHandler(analysisService),
		GetStatusHandler:     handler.NewGetStatusHandler(analysisService),
		HistoryHandler:       handler.NewHistoryHandler(analysisService),
		HistoryDetailHandler: handler.NewHistoryDetailHandler(analysisService),
		DeleteHistoryHandler: handler.NewDeleteHistoryHandler(analysisService),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout. In-flight analyses keep running until
	// they reach a terminal state; they are never cancelled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
