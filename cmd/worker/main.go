package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"outreach-dialer/internal/app"
	"outreach-dialer/internal/config"
	"outreach-dialer/internal/scheduler"
	"outreach-dialer/pkg/logger"
)

// The worker runs feed-forward dial cycles queued by the api's event processor.
func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	a, err := app.Open(rootCtx, cfg, log)
	if err != nil {
		log.Error("app init failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	w := scheduler.NewWorker(cfg, a.Coordinator, log)
	log.Info("worker started", "queue", cfg.Asynq.Queue, "concurrency", cfg.Asynq.Concurrency)
	if err := w.Run(rootCtx); err != nil {
		log.Error("worker failed", "err", err)
		os.Exit(1)
	}
	log.Info("worker stopped")
}
