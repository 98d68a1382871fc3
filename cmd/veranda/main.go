package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/veranda-ops/veranda-ops/internal/app"
	"github.com/veranda-ops/veranda-ops/internal/ledger"
	"github.com/veranda-ops/veranda-ops/internal/location"
	"github.com/veranda-ops/veranda-ops/internal/observability"
	"github.com/veranda-ops/veranda-ops/internal/platform/cache"
	"github.com/veranda-ops/veranda-ops/internal/platform/db"
	"github.com/veranda-ops/veranda-ops/internal/reporting"
	"github.com/veranda-ops/veranda-ops/internal/transfer"
	"github.com/veranda-ops/veranda-ops/jobs"
)

// engineRecorder fans transfer outcomes out to metrics and the report cache.
type engineRecorder struct {
	metrics *observability.Metrics
	reports *reporting.Service
}

func (r engineRecorder) TransferCompleted() {
	r.metrics.TransferCompleted()
	r.reports.Invalidate(context.Background())
}

func (r engineRecorder) TransferFailed(reason string) {
	r.metrics.TransferFailed(reason)
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, reports uncached", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	locationRepo := location.NewRepository(dbpool)
	locationResolver := location.NewResolver(locationRepo)

	ledgerRepo := ledger.NewRepository(dbpool)
	ledgerResolver := ledger.NewResolver(ledgerRepo, logger, metrics)
	ledgerHandler := ledger.NewHandler(logger, ledgerResolver)

	reportingRepo := reporting.NewRepository(dbpool)
	reportingCache := reporting.NewCache(redisClient, cfg.ReportCacheTTL)
	if err := reportingCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("report cache subscribe", slog.Any("error", err))
	}
	reportingService := reporting.NewService(reportingRepo, reportingCache, logger)
	reportingHandler := reporting.NewHandler(logger, reportingService)

	transferRepo := transfer.NewRepository(dbpool)
	recorder := engineRecorder{metrics: metrics, reports: reportingService}
	engine := transfer.NewEngine(transferRepo, ledgerResolver, locationResolver, logger, transfer.Config{
		MaxAttempts:  cfg.TransferMaxAttempts,
		RetryBackoff: cfg.TransferRetryBackoff,
		TxTimeout:    cfg.TransferTxTimeout,
	}, recorder)
	transferHandler := transfer.NewHandler(logger, engine, transferRepo)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		TransferHandler:  transferHandler,
		LedgerHandler:    ledgerHandler,
		ReportingHandler: reportingHandler,
		JobsHandler:      jobsHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
