package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mobistock/mobistock/internal/app"
	"github.com/mobistock/mobistock/internal/clients"
	"github.com/mobistock/mobistock/internal/inventory"
	"github.com/mobistock/mobistock/internal/invoices"
	"github.com/mobistock/mobistock/internal/observability"
	"github.com/mobistock/mobistock/internal/platform/cache"
	"github.com/mobistock/mobistock/internal/platform/db"
	"github.com/mobistock/mobistock/internal/sales"
	"github.com/mobistock/mobistock/internal/shared"
)

func main() {
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
		logger.Warn("redis unavailable, sale list cache disabled", slog.Any("error", err))
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

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	clientStore := clients.NewStore(dbpool)
	unitStore := inventory.NewStore(dbpool)
	invoiceStore := invoices.NewStore(dbpool)

	saleCache := sales.NewCache(redisClient, cfg.SaleCacheTTL)
	saleRepo := sales.NewRepository(dbpool)
	saleService := sales.NewService(saleRepo, auditLogger, metrics, idempotencyStore, saleCache, logger)

	salesHandler := sales.NewHandler(logger, saleService, saleCache)
	clientsHandler := clients.NewHandler(logger, clientStore)
	inventoryHandler := inventory.NewHandler(logger, unitStore)
	invoicesHandler := invoices.NewHandler(logger, invoiceStore)

	// expired idempotency keys are purged on a timer instead of a worker queue
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := idempotencyStore.Cleanup(ctx, cfg.IdempotencyRetention); err != nil {
					logger.Warn("idempotency cleanup", slog.Any("error", err))
				}
			}
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SalesHandler:     salesHandler,
		ClientsHandler:   clientsHandler,
		InventoryHandler: inventoryHandler,
		InvoicesHandler:  invoicesHandler,
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
