package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/veranda-ops/veranda-ops/internal/app"
	jobmetrics "github.com/veranda-ops/veranda-ops/internal/jobs"
	"github.com/veranda-ops/veranda-ops/internal/ledger"
	"github.com/veranda-ops/veranda-ops/internal/location"
	"github.com/veranda-ops/veranda-ops/internal/platform/db"
	"github.com/veranda-ops/veranda-ops/internal/transfer"
	"github.com/veranda-ops/veranda-ops/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := jobmetrics.NewMetrics(nil)

	locationRepo := location.NewRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)
	resolver := ledger.NewResolver(ledgerRepo, logger, nil)
	transferRepo := transfer.NewRepository(pool)

	backfillJob := jobs.NewLegacyBackfillJob(locationRepo, ledgerRepo, resolver, logger, metrics)
	staleJob := jobs.NewStaleTransferScanJob(transferRepo, logger, metrics, cfg.StaleTransferWindow)

	backfillTask, err := jobs.NewLegacyBackfillTask(time.Now().UTC())
	if err != nil {
		logger.Error("build backfill task", slog.Any("error", err))
		os.Exit(1)
	}
	staleTask, err := jobs.NewStaleTransferScanTask(cfg.StaleTransferWindow)
	if err != nil {
		logger.Error("build stale scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLegacyBackfill, Handler: backfillJob.Handle},
			{Type: jobs.TaskStaleTransferScan, Handler: staleJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 3 * * *", Task: backfillTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 * * * *", Task: staleTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
