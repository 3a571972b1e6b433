package orders

import (
	"context"
	"errors"

	"github.com/kirana-commerce/kirana-commerce/internal/invoices"
	"github.com/kirana-commerce/kirana-commerce/internal/ledger"
)

// InvoiceSourceAdapter exposes orders to the invoice generator through its
// narrow OrderSource view.
type InvoiceSourceAdapter struct {
	repo Repository
}

// NewInvoiceSourceAdapter wraps the order repository.
func NewInvoiceSourceAdapter(repo Repository) *InvoiceSourceAdapter {
	return &InvoiceSourceAdapter{repo: repo}
}

// OrderInfo loads the order snapshot invoice generation needs.
func (a *InvoiceSourceAdapter) OrderInfo(ctx context.Context, orderID int64) (*invoices.OrderInfo, error) {
	order, err := a.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invoices.ErrOrderNotFound
		}
		return nil, err
	}
	lines := make([]invoices.OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, invoices.OrderLine{
			Description:    item.ProductName,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			GSTRatePercent: item.GSTRatePercent,
		})
	}
	return &invoices.OrderInfo{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		CustomerName:   order.CustomerName,
		CustomerEmail:  order.CustomerEmail,
		CustomerGSTIN:  order.CustomerGSTIN,
		ShipAddress:    order.ShipAddress,
		ShipCity:       order.ShipCity,
		ShipState:      order.ShipState,
		ShipPincode:    order.ShipPincode,
		ShippingAmount: order.ShippingAmount,
		Delivered:      order.Status == StatusDelivered,
		DeliveredAt:    order.DeliveredAt,
		Lines:          lines,
	}, nil
}

// InvoiceIssuerAdapter satisfies InvoiceIssuer with the invoice service.
type InvoiceIssuerAdapter struct {
	svc *invoices.Service
}

// NewInvoiceIssuerAdapter wraps the invoice service.
func NewInvoiceIssuerAdapter(svc *invoices.Service) *InvoiceIssuerAdapter {
	return &InvoiceIssuerAdapter{svc: svc}
}

func (a *InvoiceIssuerAdapter) IssueProforma(ctx context.Context, orderID, actorID int64) (string, error) {
	return a.svc.IssueProforma(ctx, orderID, actorID)
}

func (a *InvoiceIssuerAdapter) EnsureFinal(ctx context.Context, orderID, actorID int64) (string, error) {
	return a.svc.EnsureFinal(ctx, orderID, actorID)
}

// LedgerAdapter satisfies StockLedger with the ledger service.
type LedgerAdapter struct {
	svc *ledger.Service
}

// NewLedgerAdapter wraps the ledger service.
func NewLedgerAdapter(svc *ledger.Service) *LedgerAdapter {
	return &LedgerAdapter{svc: svc}
}

func (a *LedgerAdapter) Append(ctx context.Context, input ledger.AppendInput) (ledger.Entry, error) {
	return a.svc.Append(ctx, input)
}
