// Package products holds the catalog slice the order and accounting cores
// depend on. Stock quantities live in the ledger, not here.
package products

import (
	"time"
)

// Product represents a sellable catalog item.
type Product struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	// Price is the current selling price per unit.
	Price float64 `json:"price"`
	// CostPrice feeds profit aggregation; it is looked up live at report
	// time rather than snapshotted on orders, so corrections flow into
	// re-run reports.
	CostPrice float64 `json:"cost_price"`
	// GSTRatePercent is nil when the product uses the default rate.
	GSTRatePercent *float64  `json:"gst_rate_percent,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ListFilters represents standard list filters.
type ListFilters struct {
	Page     int
	Limit    int
	Search   string
	IsActive *bool
}
