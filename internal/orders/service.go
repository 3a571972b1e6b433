package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirana-commerce/kirana-commerce/internal/ledger"
	"github.com/kirana-commerce/kirana-commerce/internal/masterdata/products"
	"github.com/kirana-commerce/kirana-commerce/internal/shared"
	"github.com/kirana-commerce/kirana-commerce/internal/tax"
)

// ProductCatalog resolves products at checkout time.
type ProductCatalog interface {
	GetMany(ctx context.Context, ids []int64) (map[int64]products.Product, error)
}

// InvoiceIssuer creates the tax documents that accompany order events.
type InvoiceIssuer interface {
	// IssueProforma creates the proforma invoice for a freshly placed order.
	IssueProforma(ctx context.Context, orderID, actorID int64) (string, error)
	// EnsureFinal creates the final invoice for a delivered order, or returns
	// the number of the one that already exists.
	EnsureFinal(ctx context.Context, orderID, actorID int64) (string, error)
}

// StockLedger records stock movements for delivered items.
type StockLedger interface {
	Append(ctx context.Context, input ledger.AppendInput) (ledger.Entry, error)
}

// FinalizeEnqueuer schedules a retry when post-delivery side effects fail.
type FinalizeEnqueuer interface {
	EnqueueFinalize(ctx context.Context, orderID, actorID int64) error
}

// Service implements order lifecycle operations.
type Service struct {
	repo        Repository
	catalog     ProductCatalog
	issuer      InvoiceIssuer
	stock       StockLedger
	enqueuer    FinalizeEnqueuer
	audit       shared.AuditRecorder
	idem        *shared.IdempotencyStore
	sellerState string
	logger      *slog.Logger
}

// ServiceConfig carries the collaborators the service needs.
type ServiceConfig struct {
	Catalog     ProductCatalog
	Issuer      InvoiceIssuer
	Stock       StockLedger
	Enqueuer    FinalizeEnqueuer
	Audit       shared.AuditRecorder
	Idempotency *shared.IdempotencyStore
	SellerState string
	Logger      *slog.Logger
}

// NewService constructs the order service.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		catalog:     cfg.Catalog,
		issuer:      cfg.Issuer,
		stock:       cfg.Stock,
		enqueuer:    cfg.Enqueuer,
		audit:       cfg.Audit,
		idem:        cfg.Idempotency,
		sellerState: cfg.SellerState,
		logger:      logger,
	}
}

// Create places a new order from a confirmed checkout. Prices and GST rates
// are resolved from the catalog and frozen onto the order lines; the shipping
// address is snapshotted as given. COD orders are confirmed immediately,
// online orders wait for the payment confirmation.
func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateRequest) (*Order, error) {
	if actor.ID == 0 {
		return nil, shared.ErrActorRequired
	}
	if err := ValidateCreateRequest(req); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProductID)
	}
	catalog, err := s.catalog.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve products: %w", err)
	}

	var lines []tax.Line
	items := make([]Item, 0, len(req.Items))
	for _, reqItem := range req.Items {
		product, ok := catalog[reqItem.ProductID]
		if !ok || !product.IsActive {
			return nil, fmt.Errorf("%w: product %d", ErrUnknownProduct, reqItem.ProductID)
		}
		rate := tax.EffectiveRate(product.GSTRatePercent)
		taxable := tax.Round2(product.Price * reqItem.Quantity)
		lines = append(lines, tax.ComputeLine(taxable, rate, req.ShipState, s.sellerState))
		items = append(items, Item{
			ProductID:      product.ID,
			ProductName:    product.Name,
			Quantity:       reqItem.Quantity,
			UnitPrice:      product.Price,
			GSTRatePercent: rate,
		})
	}
	totals, lines := tax.Aggregate(lines)
	for i := range items {
		items[i].TaxableValue = lines[i].TaxableValue
		items[i].CGSTAmount = lines[i].Breakup.CGST
		items[i].SGSTAmount = lines[i].Breakup.SGST
		items[i].IGSTAmount = lines[i].Breakup.IGST
		items[i].LineTotal = lines[i].LineTotal
	}

	order := Order{
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		CustomerGSTIN:  req.CustomerGSTIN,
		ShipAddress:    req.ShipAddress,
		ShipCity:       req.ShipCity,
		ShipState:      req.ShipState,
		ShipPincode:    req.ShipPincode,
		Status:         StatusPending,
		PaymentMethod:  req.PaymentMethod,
		PaymentStatus:  PaymentStatusPending,
		Subtotal:       totals.Subtotal,
		ShippingAmount: tax.Round2(req.ShippingAmount),
		TaxAmount:      totals.TaxTotal,
		TotalAmount:    tax.Round2(totals.GrandTotal + req.ShippingAmount),
		CreatedBy:      actor.ID,
		Items:          items,
	}
	if order.IsCOD() {
		order.Status = StatusConfirmed
		order.CODState = "PENDING"
	}
	if err := ValidateAmounts(&order); err != nil {
		return nil, err
	}

	var orderID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.GenerateOrderNumber(ctx, time.Now())
		if err != nil {
			return err
		}
		order.OrderNumber = number
		orderID, err = tx.CreateOrder(ctx, order)
		if err != nil {
			return err
		}
		for i := range order.Items {
			order.Items[i].OrderID = orderID
			if _, err := tx.InsertItem(ctx, order.Items[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor.ID, "order.create", orderID, map[string]any{
		"order_number":   order.OrderNumber,
		"payment_method": order.PaymentMethod,
		"total_amount":   order.TotalAmount,
	})

	if s.issuer != nil {
		if _, err := s.issuer.IssueProforma(ctx, orderID, actor.ID); err != nil {
			// Proforma is a courtesy document; it can be regenerated from the
			// back office if this fails.
			s.logger.Warn("proforma issue failed", "order_id", orderID, "error", err)
		}
	}

	return s.repo.GetByID(ctx, orderID)
}

// Get loads one order with items.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByNumber loads one order by its human-facing number.
func (s *Service) GetByNumber(ctx context.Context, orderNumber string) (*Order, error) {
	return s.repo.GetByNumber(ctx, orderNumber)
}

// List returns filtered, paginated orders.
func (s *Service) List(ctx context.Context, req ListRequest) (*ListResponse, error) {
	list, total, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	return &ListResponse{Orders: list, Total: total, Limit: limit, Offset: req.Offset}, nil
}

// Transition advances an order along the fulfillment chain. Skipping
// intermediate statuses forward is allowed; moving backwards is not. The
// SHIPPED transition requires courier details; DELIVERED triggers stock
// deduction and final invoice generation after the status commit.
func (s *Service) Transition(ctx context.Context, actor shared.Actor, id int64, req TransitionRequest) (*Order, error) {
	if actor.ID == 0 {
		return nil, shared.ErrActorRequired
	}
	if req.Target == StatusCancelled {
		return nil, fmt.Errorf("%w: use cancel", ErrIllegalTransition)
	}
	if !req.Target.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %s", ErrIllegalTransition, req.Target)
	}

	var fromStatus Status
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(req.Target) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, order.Status, req.Target)
		}
		fromStatus = order.Status

		updates := map[string]interface{}{}
		switch req.Target {
		case StatusShipped:
			if err := ValidateShippingDetails(req.ShippingDetails); err != nil {
				return err
			}
			updates["courier_name"] = req.ShippingDetails.CourierName
			updates["tracking_id"] = req.ShippingDetails.TrackingID
			updates["tracking_url"] = req.ShippingDetails.TrackingURL
			updates["expected_delivery_date"] = req.ShippingDetails.ExpectedDeliveryDate
			updates["shipped_at"] = time.Now()
		case StatusDelivered:
			now := time.Now()
			updates["delivered_at"] = now
			// The flag commits with the status so a crash between commit and
			// invoice generation leaves a visible, retryable marker.
			updates["final_invoice_pending"] = true
			if order.IsCOD() && order.CODState == "" {
				updates["cod_state"] = "PENDING"
			}
		}
		return tx.UpdateStatus(ctx, id, req.Target, updates)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor.ID, "order.transition", id, map[string]any{
		"from": fromStatus,
		"to":   req.Target,
	})

	if req.Target == StatusDelivered {
		if err := s.FinalizeDelivered(ctx, id, actor.ID); err != nil {
			s.logger.Error("post-delivery finalize failed, scheduling retry",
				"order_id", id, "error", err)
			if s.enqueuer != nil {
				if qerr := s.enqueuer.EnqueueFinalize(ctx, id, actor.ID); qerr != nil {
					s.logger.Error("finalize enqueue failed", "order_id", id, "error", qerr)
				}
			}
		}
	}

	return s.repo.GetByID(ctx, id)
}

// FinalizeDelivered performs the post-delivery side effects: stock deduction
// through the ledger and final invoice generation. It is safe to call any
// number of times; stock entries deduplicate on their reference key and the
// final invoice is unique per order.
func (s *Service) FinalizeDelivered(ctx context.Context, orderID, actorID int64) error {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != StatusDelivered {
		return fmt.Errorf("%w: order %d is %s", ErrIllegalTransition, orderID, order.Status)
	}
	if !order.FinalInvoicePending {
		return nil
	}

	for _, item := range order.Items {
		_, err := s.stock.Append(ctx, ledger.AppendInput{
			SubjectType: ledger.SubjectStock,
			SubjectID:   fmt.Sprintf("%d", item.ProductID),
			Action:      ledger.ActionUse,
			Delta:       -item.Quantity,
			ActorID:     actorID,
			Note:        fmt.Sprintf("delivered with %s", order.OrderNumber),
			RefKey:      fmt.Sprintf("order:%d:delivery:%d", orderID, item.ProductID),
		})
		if err != nil && !errors.Is(err, ledger.ErrDuplicateRef) {
			return fmt.Errorf("stock deduction: %w", err)
		}
	}

	invoiceNumber, err := s.issuer.EnsureFinal(ctx, orderID, actorID)
	if err != nil {
		return fmt.Errorf("final invoice: %w", err)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateOrder(ctx, orderID, map[string]interface{}{
			"final_invoice_pending": false,
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("order finalized", "order_id", orderID, "invoice_number", invoiceNumber)
	return nil
}

// Cancel cancels an order from any non-terminal status. Stock is only
// deducted at delivery, so no compensation entry is needed.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, id int64, req CancelRequest) (*Order, error) {
	if actor.ID == 0 {
		return nil, shared.ErrActorRequired
	}
	var fromStatus Status
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return fmt.Errorf("%w: order is %s", ErrCannotCancel, order.Status)
		}
		fromStatus = order.Status
		now := time.Now()
		return tx.UpdateStatus(ctx, id, StatusCancelled, map[string]interface{}{
			"cancelled_by":        actor.ID,
			"cancelled_at":        now,
			"cancellation_reason": req.Reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor.ID, "order.cancel", id, map[string]any{
		"from":   fromStatus,
		"reason": req.Reason,
	})
	return s.repo.GetByID(ctx, id)
}

// ConfirmPayment records a successful gateway payment for an online order.
// Redelivered confirmations with the same payment id are acknowledged
// without effect; a different payment id against an already paid order is
// rejected.
func (s *Service) ConfirmPayment(ctx context.Context, conf PaymentConfirmation) (*Order, error) {
	if conf.OrderID <= 0 || conf.PaymentID == "" {
		return nil, fmt.Errorf("payment confirmation requires order_id and payment_id")
	}

	key := "payment:" + conf.PaymentID
	claimed := false
	if s.idem != nil {
		switch err := s.idem.CheckAndInsert(ctx, key, "orders"); {
		case errors.Is(err, shared.ErrIdempotencyConflict):
			// Seen before. Fall through to the row check, which distinguishes
			// a completed replay from an interrupted first attempt.
		case err != nil:
			return nil, err
		default:
			claimed = true
		}
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetByIDForUpdate(ctx, conf.OrderID)
		if err != nil {
			return err
		}
		if order.PaymentMethod != PaymentMethodOnline {
			// COD cash moves through the settlement chain, never through the
			// gateway. A confirmation against a COD order is a gateway bug or
			// worse.
			return fmt.Errorf("%w: order %s pays by %s",
				ErrNotOnlineOrder, order.OrderNumber, order.PaymentMethod)
		}
		if order.PaymentStatus == PaymentStatusPaid {
			if order.PaymentID != nil && *order.PaymentID == conf.PaymentID {
				return nil
			}
			return ErrAlreadyPaid
		}
		if diff := order.TotalAmount - conf.Amount; diff > tax.Epsilon || diff < -tax.Epsilon {
			return fmt.Errorf("%w: expected %.2f, got %.2f",
				ErrPaymentAmountMismatch, order.TotalAmount, conf.Amount)
		}

		updates := map[string]interface{}{
			"payment_status": PaymentStatusPaid,
			"payment_id":     conf.PaymentID,
			"paid_at":        time.Now(),
		}
		if order.Status == StatusPending {
			return tx.UpdateStatus(ctx, conf.OrderID, StatusConfirmed, updates)
		}
		return tx.UpdateOrder(ctx, conf.OrderID, updates)
	})
	if err != nil {
		if claimed {
			if derr := s.idem.Delete(ctx, key); derr != nil {
				s.logger.Warn("idempotency key rollback failed", "key", key, "error", derr)
			}
		}
		return nil, err
	}

	return s.repo.GetByID(ctx, conf.OrderID)
}

// Delete removes an order and its invoices permanently. This is an
// administrative escape hatch; the deletion itself is written to the audit
// log and ledger entries referencing the order are intentionally kept.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	if actor.ID == 0 {
		return shared.ErrActorRequired
	}
	var orderNumber string
	var invoicesDeleted int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		orderNumber = order.OrderNumber
		invoicesDeleted, err = tx.DeleteInvoicesForOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, id); err != nil {
			return err
		}
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, actor.ID, "order.delete", id, map[string]any{
		"order_number":     orderNumber,
		"invoices_deleted": invoicesDeleted,
	})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "order",
		EntityID: fmt.Sprintf("%d", orderID),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Error("audit record failed", "action", action, "order_id", orderID, "error", err)
	}
}
