package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/docassist/internal/app"
	"github.com/nikhilbhutani/docassist/internal/config"
	"github.com/nikhilbhutani/docassist/internal/queue"
	"github.com/nikhilbhutani/docassist/internal/queue/workers"
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
	if cfg.Queue.Backend != "asynq" {
		slog.Error("worker needs QUEUE_BACKEND=asynq; the in-process queue runs inside the API", "queue", cfg.Queue.Backend)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			slog.Error("shutdown incomplete", "error", err)
		}
	}()

	srv := asynq.NewServer(queue.RedisOpt(cfg.Redis), asynq.Config{
		Concurrency:     cfg.Queue.Concurrency,
		ShutdownTimeout: 30 * time.Second,
		Logger:          asynqLogger{},
	})

	registry := queue.NewHandlersRegistry()
	registry.Register(queue.TypeDocumentProcess, asynq.HandlerFunc(workers.NewDocumentWorker(a.Pipeline).ProcessTask))

	go a.Reconciler.Run(ctx)

	slog.Info("starting worker", "concurrency", cfg.Queue.Concurrency)
	if err := srv.Start(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		return
	}

	<-ctx.Done()
	slog.Info("shutting down worker...")
	srv.Shutdown()
	slog.Info("worker stopped")
}

// asynqLogger routes asynq's internal logging through slog.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...any) { slog.Debug("asynq", "msg", args) }
func (asynqLogger) Info(args ...any)  { slog.Info("asynq", "msg", args) }
func (asynqLogger) Warn(args ...any)  { slog.Warn("asynq", "msg", args) }
func (asynqLogger) Error(args ...any) { slog.Error("asynq", "msg", args) }
func (asynqLogger) Fatal(args ...any) {
	slog.Error("asynq fatal", "msg", args)
	os.Exit(1)
}
