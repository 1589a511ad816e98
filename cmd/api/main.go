package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nikhilbhutani/docassist/internal/api"
	"github.com/nikhilbhutani/docassist/internal/api/middleware"
	"github.com/nikhilbhutani/docassist/internal/app"
	"github.com/nikhilbhutani/docassist/internal/auth"
	"github.com/nikhilbhutani/docassist/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(app.NewLogger(os.Stdout, cfg.Log.Level))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}

	// With no separate worker, this process also sweeps stuck documents.
	if a.Pool != nil {
		go a.Reconciler.Run(ctx)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	go limiter.Cleanup(ctx.Done())

	handler := api.NewRouter(api.Deps{
		Documents:      a.Documents,
		Chat:           a.Chat,
		Authenticate:   auth.NewJWTMiddleware(cfg.Auth.JWTSecret).Authenticate,
		ReadyChecks:    a.ReadyChecks,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimiter:    limiter,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           http.TimeoutHandler(handler, cfg.Server.RequestTimeout, `{"error":"request timed out"}`),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		slog.Error("shutdown incomplete", "error", err)
	}
	slog.Info("server stopped")
}
