package orders

import "time"

// CreateRequest represents a checkout confirmation.
type CreateRequest struct {
	CustomerName  string `json:"customer_name" validate:"required,max=200"`
	CustomerEmail string `json:"customer_email" validate:"required,email"`
	CustomerGSTIN string `json:"customer_gstin,omitempty" validate:"omitempty,len=15"`

	ShipAddress string `json:"ship_address" validate:"required,max=500"`
	ShipCity    string `json:"ship_city" validate:"required,max=100"`
	ShipState   string `json:"ship_state" validate:"required,max=100"`
	ShipPincode string `json:"ship_pincode" validate:"required,max=10"`

	PaymentMethod  PaymentMethod `json:"payment_method" validate:"required,oneof=ONLINE COD"`
	ShippingAmount float64       `json:"shipping_amount" validate:"gte=0"`

	Items []CreateItemReq `json:"items" validate:"required,min=1,dive"`
}

// CreateItemReq is one requested line item.
type CreateItemReq struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
}

// TransitionRequest moves an order along the fulfillment chain.
type TransitionRequest struct {
	Target          Status           `json:"target" validate:"required"`
	ShippingDetails *ShippingDetails `json:"shipping_details,omitempty"`
}

// CancelRequest cancels an order from any non-terminal status.
type CancelRequest struct {
	Reason string `json:"reason" validate:"required,min=5,max=500"`
}

// PaymentConfirmation is the inbound fact from the payment collaborator.
type PaymentConfirmation struct {
	OrderID   int64   `json:"order_id" validate:"required,gt=0"`
	PaymentID string  `json:"payment_id" validate:"required,max=100"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
}

// ListRequest filters the order list.
type ListRequest struct {
	Status        *Status        `json:"status,omitempty"`
	PaymentMethod *PaymentMethod `json:"payment_method,omitempty"`
	DateFrom      *time.Time     `json:"date_from,omitempty"`
	DateTo        *time.Time     `json:"date_to,omitempty"`
	Limit         int            `json:"limit" validate:"gte=0,lte=1000"`
	Offset        int            `json:"offset" validate:"gte=0"`
}

// ListResponse is the paginated API response.
type ListResponse struct {
	Orders []Order `json:"orders"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}
