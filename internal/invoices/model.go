// Package invoices issues the GST documents of the storefront: proforma
// invoices at order placement and final tax invoices at delivery. Tax math
// is delegated to the tax package so documents derived from the same order
// always agree.
package invoices

import (
	"context"
	"time"
)

// InvoiceType distinguishes the courtesy document from the statutory one.
type InvoiceType string

const (
	// TypeProforma is issued when the order is placed. It carries no legal
	// weight and may exist in multiples per order.
	TypeProforma InvoiceType = "PROFORMA"
	// TypeFinal is the statutory tax invoice issued at delivery. At most one
	// non-voided final invoice exists per order.
	TypeFinal InvoiceType = "FINAL"
)

// IsValid checks the type is a defined value.
func (t InvoiceType) IsValid() bool {
	return t == TypeProforma || t == TypeFinal
}

// Invoice is a GST document. Amounts are frozen at issue time; issued
// invoices are never edited, only voided.
type Invoice struct {
	ID            int64       `json:"id"`
	InvoiceNumber string      `json:"invoice_number"`
	InvoiceType   InvoiceType `json:"invoice_type"`
	// OrderID is nil for manual proforma invoices.
	OrderID     *int64 `json:"order_id,omitempty"`
	OrderNumber string `json:"order_number,omitempty"`

	BuyerName    string `json:"buyer_name"`
	BuyerEmail   string `json:"buyer_email,omitempty"`
	BuyerGSTIN   string `json:"buyer_gstin,omitempty"`
	BuyerAddress string `json:"buyer_address"`
	BuyerState   string `json:"buyer_state"`
	SellerState  string `json:"seller_state"`
	InterState   bool   `json:"inter_state"`

	Subtotal       float64 `json:"subtotal"`
	CGSTTotal      float64 `json:"cgst_total"`
	SGSTTotal      float64 `json:"sgst_total"`
	IGSTTotal      float64 `json:"igst_total"`
	TaxTotal       float64 `json:"tax_total"`
	ShippingAmount float64 `json:"shipping_amount"`
	GrandTotal     float64 `json:"grand_total"`

	Voided     bool       `json:"voided"`
	VoidedBy   *int64     `json:"voided_by,omitempty"`
	VoidedAt   *time.Time `json:"voided_at,omitempty"`
	VoidReason *string    `json:"void_reason,omitempty"`

	// DeliveryDate is the order's delivery timestamp frozen onto final
	// invoices. A retried generation days later still carries the date the
	// goods changed hands, while IssuedAt records when the document was cut.
	DeliveryDate *time.Time `json:"delivery_date,omitempty"`

	IssuedAt  time.Time `json:"issued_at"`
	CreatedBy int64     `json:"created_by"`

	Lines []Line `json:"lines,omitempty"`
}

// Line is one invoice line with its GST breakup.
type Line struct {
	ID             int64   `json:"id"`
	InvoiceID      int64   `json:"invoice_id"`
	Description    string  `json:"description"`
	Quantity       float64 `json:"quantity"`
	UnitPrice      float64 `json:"unit_price"`
	TaxableValue   float64 `json:"taxable_value"`
	GSTRatePercent float64 `json:"gst_rate_percent"`
	CGSTAmount     float64 `json:"cgst_amount"`
	SGSTAmount     float64 `json:"sgst_amount"`
	IGSTAmount     float64 `json:"igst_amount"`
	LineTotal      float64 `json:"line_total"`
}

// OrderLine is the order-side input to invoice generation.
type OrderLine struct {
	Description    string
	Quantity       float64
	UnitPrice      float64
	GSTRatePercent float64
}

// OrderInfo is the order snapshot invoice generation works from. The
// orders package provides the implementation of OrderSource; depending on
// this narrow view keeps the packages acyclic.
type OrderInfo struct {
	ID             int64
	OrderNumber    string
	CustomerName   string
	CustomerEmail  string
	CustomerGSTIN  string
	ShipAddress    string
	ShipCity       string
	ShipState      string
	ShipPincode    string
	ShippingAmount float64
	Delivered      bool
	DeliveredAt    *time.Time
	Lines          []OrderLine
}

// OrderSource resolves orders for invoice generation.
type OrderSource interface {
	OrderInfo(ctx context.Context, orderID int64) (*OrderInfo, error)
}
