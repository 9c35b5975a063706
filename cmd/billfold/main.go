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

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/billfold/billfold/internal/app"
	"github.com/billfold/billfold/internal/clients"
	"github.com/billfold/billfold/internal/guest"
	"github.com/billfold/billfold/internal/invoices"
	"github.com/billfold/billfold/internal/payments"
	"github.com/billfold/billfold/internal/platform/cache"
	"github.com/billfold/billfold/internal/platform/db"
	"github.com/billfold/billfold/internal/quotes"
	"github.com/billfold/billfold/internal/series"
	"github.com/billfold/billfold/internal/settings"
	"github.com/billfold/billfold/internal/taxrates"
	"github.com/billfold/billfold/jobs"
)

const settingsCacheTTL = 5 * time.Minute

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

	settingsRepo := settings.NewRepository(pool)
	settingsService := settings.NewService(settingsRepo, redisClient, settingsCacheTTL, logger)

	taxRateRepo := taxrates.NewRepository(pool)
	taxRateService := taxrates.NewService(taxRateRepo)

	seriesRepo := series.NewRepository(pool)
	seriesService := series.NewService(seriesRepo)

	clientRepo := clients.NewRepository(pool)
	clientService := clients.NewService(clientRepo)

	invoiceRepo := invoices.NewRepository(pool)
	invoiceService := invoices.NewService(logger, invoiceRepo, seriesService, taxRateService, settingsService)

	quoteRepo := quotes.NewRepository(pool)
	quoteService := quotes.NewService(logger, quoteRepo, seriesService, taxRateService, settingsService)

	paymentRepo := payments.NewRepository(pool)
	paymentService := payments.NewService(logger, paymentRepo)

	guestService := guest.NewService(logger, invoiceRepo, quoteRepo)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		ClientsHandler:  clients.NewHandler(logger, clientService),
		InvoicesHandler: invoices.NewHandler(logger, invoiceService),
		QuotesHandler:   quotes.NewHandler(logger, quoteService),
		PaymentsHandler: payments.NewHandler(logger, paymentService),
		TaxRatesHandler: taxrates.NewHandler(logger, taxRateService),
		SeriesHandler:   series.NewHandler(logger, seriesService),
		SettingsHandler: settings.NewHandler(logger, settingsService),
		GuestHandler:    guest.NewHandler(logger, guestService),
		JobsHandler:     jobs.NewHandler(inspector, jobClient, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
