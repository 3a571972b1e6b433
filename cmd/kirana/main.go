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

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/kirana-commerce/kirana-commerce/internal/accounting"
	accountinghttp "github.com/kirana-commerce/kirana-commerce/internal/accounting/http"
	"github.com/kirana-commerce/kirana-commerce/internal/app"
	"github.com/kirana-commerce/kirana-commerce/internal/cod"
	"github.com/kirana-commerce/kirana-commerce/internal/invoices"
	"github.com/kirana-commerce/kirana-commerce/internal/ledger"
	"github.com/kirana-commerce/kirana-commerce/internal/masterdata/products"
	"github.com/kirana-commerce/kirana-commerce/internal/orders"
	"github.com/kirana-commerce/kirana-commerce/internal/platform/db"
	"github.com/kirana-commerce/kirana-commerce/internal/shared"
	"github.com/kirana-commerce/kirana-commerce/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	validate := validator.New()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, ledger.ServiceConfig{
		AllowNegativeBalance: cfg.AllowNegativeStock,
	})

	productRepo := products.NewRepository(pool)
	productService := products.NewService(productRepo)

	orderRepo := orders.NewRepository(pool)
	invoiceRepo := invoices.NewRepository(pool)
	invoiceService := invoices.NewService(invoiceRepo, invoices.ServiceConfig{
		Orders:      orders.NewInvoiceSourceAdapter(orderRepo),
		Audit:       auditLogger,
		SellerState: cfg.SellerState,
		Logger:      logger,
	})

	asynqOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(asynqOpts, logger)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	orderService := orders.NewService(orderRepo, orders.ServiceConfig{
		Catalog:     productService,
		Issuer:      orders.NewInvoiceIssuerAdapter(invoiceService),
		Stock:       orders.NewLedgerAdapter(ledgerService),
		Enqueuer:    jobClient,
		Audit:       auditLogger,
		Idempotency: idempotencyStore,
		SellerState: cfg.SellerState,
		Logger:      logger,
	})

	codRepo := cod.NewRepository(pool)
	codService := cod.NewService(codRepo, cod.ServiceConfig{
		Cash:   orders.NewLedgerAdapter(ledgerService),
		Audit:  auditLogger,
		Logger: logger,
	})

	reportRepo := accounting.NewRepository(pool)
	reportCache := accounting.NewCache(redisClient, cfg.ReportCacheTTL)
	reportService := accounting.NewService(reportRepo, reportCache)

	inspector := asynq.NewInspector(asynqOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		OrdersHandler:     orders.NewHandler(orderService, validate, logger),
		CODHandler:        cod.NewHandler(codService, validate, logger),
		InvoicesHandler:   invoices.NewHandler(invoiceService, validate, logger),
		LedgerHandler:     ledger.NewHandler(ledgerService, validate, logger),
		ProductsHandler:   products.NewHandler(productService, validate, logger),
		AccountingHandler: accountinghttp.NewHandler(logger, reportService),
		JobsHandler:       jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.AppAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
