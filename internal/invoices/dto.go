package invoices

import "time"

// ManualProformaRequest creates a proforma invoice that is not backed by a
// storefront order, e.g. for a phone quotation.
type ManualProformaRequest struct {
	BuyerName    string `json:"buyer_name" validate:"required,max=200"`
	BuyerEmail   string `json:"buyer_email,omitempty" validate:"omitempty,email"`
	BuyerGSTIN   string `json:"buyer_gstin,omitempty" validate:"omitempty,len=15"`
	BuyerAddress string `json:"buyer_address" validate:"required,max=500"`
	BuyerState   string `json:"buyer_state" validate:"required,max=100"`

	Lines []ManualLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// ManualLineRequest is one ad-hoc line of a manual proforma.
type ManualLineRequest struct {
	Description string  `json:"description" validate:"required,max=300"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"required,gte=0"`
	// GSTRatePercent of zero applies the default rate.
	GSTRatePercent float64 `json:"gst_rate_percent" validate:"gte=0,lte=100"`
}

// VoidRequest marks an invoice as voided.
type VoidRequest struct {
	Reason string `json:"reason" validate:"required,min=5,max=500"`
}

// ListRequest filters the invoice register.
type ListRequest struct {
	InvoiceType *InvoiceType `json:"invoice_type,omitempty"`
	OrderID     *int64       `json:"order_id,omitempty"`
	DateFrom    *time.Time   `json:"date_from,omitempty"`
	DateTo      *time.Time   `json:"date_to,omitempty"`
	Limit       int          `json:"limit" validate:"gte=0,lte=1000"`
	Offset      int          `json:"offset" validate:"gte=0"`
}

// ListResponse is the paginated register response.
type ListResponse struct {
	Invoices []Invoice `json:"invoices"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}
