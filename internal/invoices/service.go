package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirana-commerce/kirana-commerce/internal/shared"
	"github.com/kirana-commerce/kirana-commerce/internal/tax"
)

// Service implements invoice operations.
type Service struct {
	repo        Repository
	orders      OrderSource
	audit       shared.AuditRecorder
	sellerState string
	logger      *slog.Logger
}

// ServiceConfig carries the collaborators the service needs.
type ServiceConfig struct {
	Orders      OrderSource
	Audit       shared.AuditRecorder
	SellerState string
	Logger      *slog.Logger
}

// NewService constructs the invoice service.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		orders:      cfg.Orders,
		audit:       cfg.Audit,
		sellerState: cfg.SellerState,
		logger:      logger,
	}
}

// Get loads one invoice with lines.
func (s *Service) Get(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByNumber loads one invoice by its document number.
func (s *Service) GetByNumber(ctx context.Context, invoiceNumber string) (*Invoice, error) {
	return s.repo.GetByNumber(ctx, invoiceNumber)
}

// List returns the filtered invoice register.
func (s *Service) List(ctx context.Context, req ListRequest) (*ListResponse, error) {
	list, total, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	return &ListResponse{Invoices: list, Total: total, Limit: limit, Offset: req.Offset}, nil
}

// IssueProforma creates a proforma invoice for an order. Orders may
// accumulate several proformas, e.g. after a manual regeneration.
func (s *Service) IssueProforma(ctx context.Context, orderID, actorID int64) (string, error) {
	info, err := s.orders.OrderInfo(ctx, orderID)
	if err != nil {
		return "", err
	}
	inv, err := s.buildFromOrder(info, TypeProforma, actorID)
	if err != nil {
		return "", err
	}
	if err := s.persist(ctx, inv); err != nil {
		return "", err
	}
	s.recordAudit(ctx, actorID, "invoice.issue_proforma", inv.InvoiceNumber, map[string]any{
		"order_id":    orderID,
		"grand_total": inv.GrandTotal,
	})
	return inv.InvoiceNumber, nil
}

// EnsureFinal creates the final tax invoice for a delivered order, or
// returns the number of the existing one. Concurrent callers race on the
// one-final-per-order unique index; the loser adopts the winner's document.
func (s *Service) EnsureFinal(ctx context.Context, orderID, actorID int64) (string, error) {
	if existing, err := s.repo.FindFinalForOrder(ctx, orderID); err == nil {
		return existing.InvoiceNumber, nil
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	info, err := s.orders.OrderInfo(ctx, orderID)
	if err != nil {
		return "", err
	}
	if !info.Delivered {
		return "", ErrNotDelivered
	}
	inv, err := s.buildFromOrder(info, TypeFinal, actorID)
	if err != nil {
		return "", err
	}
	err = s.persist(ctx, inv)
	if errors.Is(err, ErrDuplicateFinal) {
		existing, ferr := s.repo.FindFinalForOrder(ctx, orderID)
		if ferr != nil {
			return "", ferr
		}
		return existing.InvoiceNumber, nil
	}
	if err != nil {
		return "", err
	}
	s.recordAudit(ctx, actorID, "invoice.issue_final", inv.InvoiceNumber, map[string]any{
		"order_id":    orderID,
		"grand_total": inv.GrandTotal,
	})
	return inv.InvoiceNumber, nil
}

// CreateManualProforma issues a proforma invoice that is not backed by a
// storefront order.
func (s *Service) CreateManualProforma(ctx context.Context, actor shared.Actor, req ManualProformaRequest) (*Invoice, error) {
	if actor.ID == 0 {
		return nil, shared.ErrActorRequired
	}
	if len(req.Lines) == 0 {
		return nil, ErrEmptyLines
	}

	var taxLines []tax.Line
	invLines := make([]Line, 0, len(req.Lines))
	for _, l := range req.Lines {
		rate := tax.EffectiveRate(&l.GSTRatePercent)
		taxable := tax.Round2(l.UnitPrice * l.Quantity)
		taxLines = append(taxLines, tax.ComputeLine(taxable, rate, req.BuyerState, s.sellerState))
		invLines = append(invLines, Line{
			Description:    l.Description,
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice,
			GSTRatePercent: rate,
		})
	}

	inv := &Invoice{
		InvoiceType:  TypeProforma,
		BuyerName:    req.BuyerName,
		BuyerEmail:   req.BuyerEmail,
		BuyerGSTIN:   req.BuyerGSTIN,
		BuyerAddress: req.BuyerAddress,
		BuyerState:   req.BuyerState,
		SellerState:  s.sellerState,
		InterState:   tax.IsInterState(req.BuyerState, s.sellerState),
		CreatedBy:    actor.ID,
		Lines:        invLines,
	}
	if err := s.applyTotals(inv, taxLines); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, inv); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor.ID, "invoice.issue_manual_proforma", inv.InvoiceNumber, map[string]any{
		"buyer_name":  inv.BuyerName,
		"grand_total": inv.GrandTotal,
	})
	return s.repo.GetByNumber(ctx, inv.InvoiceNumber)
}

// Void marks an invoice as voided. The document stays in the register for
// the audit trail; voiding a final invoice reopens the slot so a corrected
// one can be issued.
func (s *Service) Void(ctx context.Context, actor shared.Actor, id int64, req VoidRequest) (*Invoice, error) {
	if actor.ID == 0 {
		return nil, shared.ErrActorRequired
	}
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Voided {
		return nil, ErrAlreadyVoided
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.MarkVoided(ctx, id, actor.ID, req.Reason)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor.ID, "invoice.void", inv.InvoiceNumber, map[string]any{
		"invoice_type": inv.InvoiceType,
		"reason":       req.Reason,
	})
	return s.repo.GetByID(ctx, id)
}

// buildFromOrder derives an invoice from the order snapshot. The tax math
// runs through the same functions order creation used, so the document
// reproduces the order's amounts exactly.
func (s *Service) buildFromOrder(info *OrderInfo, invoiceType InvoiceType, actorID int64) (*Invoice, error) {
	if len(info.Lines) == 0 {
		return nil, ErrEmptyLines
	}
	var taxLines []tax.Line
	invLines := make([]Line, 0, len(info.Lines))
	for _, l := range info.Lines {
		rate := tax.EffectiveRate(&l.GSTRatePercent)
		taxable := tax.Round2(l.UnitPrice * l.Quantity)
		taxLines = append(taxLines, tax.ComputeLine(taxable, rate, info.ShipState, s.sellerState))
		invLines = append(invLines, Line{
			Description:    l.Description,
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice,
			GSTRatePercent: rate,
		})
	}

	address := strings.Join([]string{info.ShipAddress, info.ShipCity, info.ShipState, info.ShipPincode}, ", ")
	orderID := info.ID
	inv := &Invoice{
		InvoiceType:    invoiceType,
		OrderID:        &orderID,
		OrderNumber:    info.OrderNumber,
		BuyerName:      info.CustomerName,
		BuyerEmail:     info.CustomerEmail,
		BuyerGSTIN:     info.CustomerGSTIN,
		BuyerAddress:   address,
		BuyerState:     info.ShipState,
		SellerState:    s.sellerState,
		InterState:     tax.IsInterState(info.ShipState, s.sellerState),
		ShippingAmount: tax.Round2(info.ShippingAmount),
		CreatedBy:      actorID,
		Lines:          invLines,
	}
	if invoiceType == TypeFinal {
		inv.DeliveryDate = info.DeliveredAt
	}
	if err := s.applyTotals(inv, taxLines); err != nil {
		return nil, err
	}
	return inv, nil
}

// applyTotals aggregates line taxes onto the invoice and refuses documents
// whose totals do not reconcile.
func (s *Service) applyTotals(inv *Invoice, taxLines []tax.Line) error {
	totals, taxLines := tax.Aggregate(taxLines)
	for i := range inv.Lines {
		inv.Lines[i].TaxableValue = taxLines[i].TaxableValue
		inv.Lines[i].CGSTAmount = taxLines[i].Breakup.CGST
		inv.Lines[i].SGSTAmount = taxLines[i].Breakup.SGST
		inv.Lines[i].IGSTAmount = taxLines[i].Breakup.IGST
		inv.Lines[i].LineTotal = taxLines[i].LineTotal
	}
	inv.Subtotal = totals.Subtotal
	inv.CGSTTotal = totals.CGSTTotal
	inv.SGSTTotal = totals.SGSTTotal
	inv.IGSTTotal = totals.IGSTTotal
	inv.TaxTotal = totals.TaxTotal
	inv.GrandTotal = tax.Round2(totals.GrandTotal + inv.ShippingAmount)
	if !tax.Reconciled(totals) {
		return fmt.Errorf("%w: %s", ErrTotalsMismatch, inv.OrderNumber)
	}
	return nil
}

// persist numbers the invoice and writes it with its lines in one
// transaction. The generated number is written back onto inv.
func (s *Service) persist(ctx context.Context, inv *Invoice) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.GenerateNumber(ctx, inv.InvoiceType, time.Now())
		if err != nil {
			return err
		}
		inv.InvoiceNumber = number
		id, err := tx.Insert(ctx, *inv)
		if err != nil {
			return err
		}
		inv.ID = id
		return nil
	})
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, invoiceNumber string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "invoice",
		EntityID: invoiceNumber,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Error("audit record failed", "action", action, "invoice", invoiceNumber, "error", err)
	}
}
