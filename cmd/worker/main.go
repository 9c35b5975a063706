package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/billfold/billfold/internal/app"
	"github.com/billfold/billfold/internal/invoices"
	"github.com/billfold/billfold/internal/platform/cache"
	"github.com/billfold/billfold/internal/platform/db"
	"github.com/billfold/billfold/internal/series"
	"github.com/billfold/billfold/internal/settings"
	"github.com/billfold/billfold/internal/taxrates"
	"github.com/billfold/billfold/jobs"
)

const settingsCacheTTL = 5 * time.Minute

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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	settingsService := settings.NewService(settings.NewRepository(pool), redisClient, settingsCacheTTL, logger)
	taxRateService := taxrates.NewService(taxrates.NewRepository(pool))
	seriesService := series.NewService(series.NewRepository(pool))
	invoiceService := invoices.NewService(logger, invoices.NewRepository(pool), seriesService, taxRateService, settingsService)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRecurringInvoices, Handler: jobs.HandleRecurringInvoices(logger, invoiceService)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RecurringCron, Task: jobs.NewRecurringInvoicesTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
