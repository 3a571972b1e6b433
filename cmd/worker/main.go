package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/kirana-commerce/kirana-commerce/internal/app"
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

	// The worker never enqueues finalize retries for itself; failed tasks
	// ride asynq's own retry schedule.
	orderService := orders.NewService(orderRepo, orders.ServiceConfig{
		Catalog:     productService,
		Issuer:      orders.NewInvoiceIssuerAdapter(invoiceService),
		Stock:       orders.NewLedgerAdapter(ledgerService),
		Audit:       auditLogger,
		Idempotency: idempotencyStore,
		SellerState: cfg.SellerState,
		Logger:      logger,
	})

	sweepTask := asynq.NewTask(jobs.TaskTypeFinalizeSweep, nil)
	integrityTask := asynq.NewTask(jobs.TaskTypeLedgerIntegrity, nil)
	cleanupTask := asynq.NewTask(jobs.TaskTypeIdempotencyCleanup, nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeInvoiceFinalize, Handler: jobs.NewInvoiceFinalizeHandler(orderService, logger)},
			{Type: jobs.TaskTypeFinalizeSweep, Handler: jobs.NewFinalizeSweepHandler(orderRepo, orderService, logger)},
			{Type: jobs.TaskTypeLedgerIntegrity, Handler: jobs.NewLedgerIntegrityHandler(ledgerService, logger)},
			{Type: jobs.TaskTypeIdempotencyCleanup, Handler: jobs.NewIdempotencyCleanupHandler(idempotencyStore, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/10 * * * *", Task: sweepTask},
			{Spec: "30 2 * * *", Task: integrityTask},
			{Spec: "0 3 * * 0", Task: cleanupTask},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
