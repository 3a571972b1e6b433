// Package orders owns the order entity and its fulfillment state machine.
package orders

import (
	"time"

	"github.com/kirana-commerce/kirana-commerce/internal/cod"
)

// Status represents the fulfillment lifecycle of an order.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusConfirmed      Status = "CONFIRMED"
	StatusPacking        Status = "PACKING"
	StatusWaitingPickup  Status = "WAITING_PICKUP"
	StatusShipped        Status = "SHIPPED"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
)

// statusRank orders the forward fulfillment chain. Cancelled sits outside
// the chain and is handled separately.
var statusRank = map[Status]int{
	StatusPending:        0,
	StatusConfirmed:      1,
	StatusPacking:        2,
	StatusWaitingPickup:  3,
	StatusShipped:        4,
	StatusOutForDelivery: 5,
	StatusDelivered:      6,
}

// IsValid checks the status is a defined value.
func (s Status) IsValid() bool {
	if s == StatusCancelled {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransitionTo reports whether target is a legal forward move. Any
// forward step along the chain is permitted; moving backwards, re-entering
// the current status, or leaving a terminal status is not.
func (s Status) CanTransitionTo(target Status) bool {
	if s.IsTerminal() {
		return false
	}
	if target == StatusCancelled {
		return true
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[target]
	if !ok {
		return false
	}
	return to > from
}

// PaymentMethod is fixed at order creation. COD orders carry the settlement
// sub-state machine; online orders settle through the payment gateway.
type PaymentMethod string

const (
	PaymentMethodOnline PaymentMethod = "ONLINE"
	PaymentMethodCOD    PaymentMethod = "COD"
)

// IsValid checks the payment method is a defined value.
func (m PaymentMethod) IsValid() bool {
	return m == PaymentMethodOnline || m == PaymentMethodCOD
}

// PaymentStatus tracks gateway payment for online orders.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

// Order represents a placed storefront order. The shipping address is a
// snapshot captured at checkout; later address-book edits never touch it.
type Order struct {
	ID          int64  `json:"id" db:"id"`
	OrderNumber string `json:"order_number" db:"order_number"`

	CustomerName  string `json:"customer_name" db:"customer_name"`
	CustomerEmail string `json:"customer_email" db:"customer_email"`
	CustomerGSTIN string `json:"customer_gstin,omitempty" db:"customer_gstin"`

	ShipAddress string `json:"ship_address" db:"ship_address"`
	ShipCity    string `json:"ship_city" db:"ship_city"`
	ShipState   string `json:"ship_state" db:"ship_state"`
	ShipPincode string `json:"ship_pincode" db:"ship_pincode"`

	Status        Status        `json:"status" db:"status"`
	PaymentMethod PaymentMethod `json:"payment_method" db:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status" db:"payment_status"`
	PaymentID     *string       `json:"payment_id,omitempty" db:"payment_id"`
	PaidAt        *time.Time    `json:"paid_at,omitempty" db:"paid_at"`

	Subtotal       float64 `json:"subtotal" db:"subtotal"`
	ShippingAmount float64 `json:"shipping_amount" db:"shipping_amount"`
	TaxAmount      float64 `json:"tax_amount" db:"tax_amount"`
	TotalAmount    float64 `json:"total_amount" db:"total_amount"`

	CourierName          *string    `json:"courier_name,omitempty" db:"courier_name"`
	TrackingID           *string    `json:"tracking_id,omitempty" db:"tracking_id"`
	TrackingURL          *string    `json:"tracking_url,omitempty" db:"tracking_url"`
	ExpectedDeliveryDate *time.Time `json:"expected_delivery_date,omitempty" db:"expected_delivery_date"`

	// COD settlement fields, meaningful only when PaymentMethod is COD.
	CODState       cod.State  `json:"cod_state,omitempty" db:"cod_state"`
	CODCourier     *string    `json:"cod_courier,omitempty" db:"cod_courier"`
	CODCollectedAt *time.Time `json:"cod_collected_at,omitempty" db:"cod_collected_at"`
	CODSettledAt   *time.Time `json:"cod_settled_at,omitempty" db:"cod_settled_at"`
	CODConfirmedBy *int64     `json:"cod_confirmed_by,omitempty" db:"cod_confirmed_by"`
	CODConfirmedAt *time.Time `json:"cod_confirmed_at,omitempty" db:"cod_confirmed_at"`

	// FinalInvoicePending is set inside the delivery transaction and cleared
	// by final invoice generation, so the two facts can never drift apart
	// silently.
	FinalInvoicePending bool `json:"final_invoice_pending" db:"final_invoice_pending"`

	CancelledBy        *int64     `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancellationReason *string    `json:"cancellation_reason,omitempty" db:"cancellation_reason"`

	CreatedBy   int64      `json:"created_by" db:"created_by"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty" db:"shipped_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`

	Items []Item `json:"items,omitempty" db:"-"`
}

// IsCOD reports whether the order pays by cash on delivery.
func (o *Order) IsCOD() bool {
	return o.PaymentMethod == PaymentMethodCOD
}

// Item is one ordered line with its tax breakdown frozen at order time.
type Item struct {
	ID             int64   `json:"id" db:"id"`
	OrderID        int64   `json:"order_id" db:"order_id"`
	ProductID      int64   `json:"product_id" db:"product_id"`
	ProductName    string  `json:"product_name" db:"product_name"`
	Quantity       float64 `json:"quantity" db:"quantity"`
	UnitPrice      float64 `json:"unit_price" db:"unit_price"`
	GSTRatePercent float64 `json:"gst_rate_percent" db:"gst_rate_percent"`
	TaxableValue   float64 `json:"taxable_value" db:"taxable_value"`
	CGSTAmount     float64 `json:"cgst_amount" db:"cgst_amount"`
	SGSTAmount     float64 `json:"sgst_amount" db:"sgst_amount"`
	IGSTAmount     float64 `json:"igst_amount" db:"igst_amount"`
	LineTotal      float64 `json:"line_total" db:"line_total"`
}

// ShippingDetails must accompany the transition to SHIPPED.
type ShippingDetails struct {
	CourierName          string     `json:"courier_name" validate:"required,max=200"`
	TrackingID           string     `json:"tracking_id" validate:"required,max=100"`
	TrackingURL          *string    `json:"tracking_url,omitempty" validate:"omitempty,url"`
	ExpectedDeliveryDate *time.Time `json:"expected_delivery_date,omitempty"`
}
