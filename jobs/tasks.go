// Package jobs carries the background work of the shop: retrying invoice
// generation after delivery, sweeping stuck orders and verifying ledger
// integrity on a schedule.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeInvoiceFinalize retries the post-delivery side effects of one
	// order: stock deduction and final invoice generation.
	TaskTypeInvoiceFinalize = "invoice:finalize"
	// TaskTypeFinalizeSweep picks up delivered orders whose final invoice is
	// still pending, catching anything the per-order retries missed.
	TaskTypeFinalizeSweep = "invoice:finalize_sweep"
	// TaskTypeLedgerIntegrity replays ledger entries against stored balances.
	TaskTypeLedgerIntegrity = "ledger:integrity"
	// TaskTypeIdempotencyCleanup prunes old idempotency keys.
	TaskTypeIdempotencyCleanup = "idempotency:cleanup"
)

// InvoiceFinalizePayload identifies the delivered order to finalize.
type InvoiceFinalizePayload struct {
	OrderID int64 `json:"order_id"`
	ActorID int64 `json:"actor_id"`
}

// NewInvoiceFinalizeTask constructs the retry task for one order.
func NewInvoiceFinalizeTask(payload InvoiceFinalizePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeInvoiceFinalize, data), nil
}

// OrderFinalizer is the orders-side operation the worker invokes. It must be
// idempotent; asynq delivers at least once.
type OrderFinalizer interface {
	FinalizeDelivered(ctx context.Context, orderID, actorID int64) error
}

// PendingLister exposes delivered orders still waiting for a final invoice.
type PendingLister interface {
	ListFinalInvoicePending(ctx context.Context, limit int) ([]int64, error)
}

// NewInvoiceFinalizeHandler builds the asynq handler for finalize retries.
func NewInvoiceFinalizeHandler(finalizer OrderFinalizer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload InvoiceFinalizePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return errors.Join(err, asynq.SkipRetry)
		}
		if err := finalizer.FinalizeDelivered(ctx, payload.OrderID, payload.ActorID); err != nil {
			logger.Warn("invoice finalize retry failed",
				"order_id", payload.OrderID, "error", err)
			return err
		}
		logger.Info("invoice finalize retry succeeded", "order_id", payload.OrderID)
		return nil
	}
}

// NewFinalizeSweepHandler builds the scheduled sweep over pending orders.
func NewFinalizeSweepHandler(lister PendingLister, finalizer OrderFinalizer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		ids, err := lister.ListFinalInvoicePending(ctx, 100)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := finalizer.FinalizeDelivered(ctx, id, 0); err != nil {
				logger.Warn("finalize sweep: order still failing", "order_id", id, "error", err)
			}
		}
		if len(ids) > 0 {
			logger.Info("finalize sweep completed", "orders", len(ids))
		}
		return nil
	}
}

// KeyCleaner prunes processed idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// idempotencyRetention is how long processed keys stay before cleanup.
const idempotencyRetention = 30 * 24 * time.Hour

// NewIdempotencyCleanupHandler builds the scheduled key pruning job.
func NewIdempotencyCleanupHandler(cleaner KeyCleaner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if err := cleaner.Cleanup(ctx, idempotencyRetention); err != nil {
			return err
		}
		logger.Info("idempotency keys pruned", "retention", idempotencyRetention.String())
		return nil
	}
}
