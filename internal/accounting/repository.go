// Package accounting aggregates recognised revenue, GST liability and COD
// exposure into back-office reports. Revenue recognition is deliberately
// conservative: online orders count once paid, COD orders count only once
// the cash is confirmed in the bank.
package accounting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SalesSummary is the headline revenue report for a period.
type SalesSummary struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	OnlineOrders  int     `json:"online_orders"`
	OnlineRevenue float64 `json:"online_revenue"`
	CODOrders     int     `json:"cod_orders"`
	CODRevenue    float64 `json:"cod_revenue"`

	TotalOrders  int     `json:"total_orders"`
	TotalRevenue float64 `json:"total_revenue"`
}

// TaxSummaryRow is one GST rate bucket aggregated over final invoices.
type TaxSummaryRow struct {
	RatePercent  float64 `json:"rate_percent"`
	TaxableValue float64 `json:"taxable_value"`
	CGST         float64 `json:"cgst"`
	SGST         float64 `json:"sgst"`
	IGST         float64 `json:"igst"`
}

// TaxSummary aggregates GST liability for a filing period.
type TaxSummary struct {
	From time.Time       `json:"from"`
	To   time.Time       `json:"to"`
	Rows []TaxSummaryRow `json:"rows"`

	TaxableTotal float64 `json:"taxable_total"`
	CGSTTotal    float64 `json:"cgst_total"`
	SGSTTotal    float64 `json:"sgst_total"`
	IGSTTotal    float64 `json:"igst_total"`
}

// CODExposureRow is one settlement state bucket.
type CODExposureRow struct {
	State  string  `json:"state"`
	Orders int     `json:"orders"`
	Amount float64 `json:"amount"`
}

// CODExposure shows how much delivered COD cash has not reached the bank.
type CODExposure struct {
	Rows        []CODExposureRow `json:"rows"`
	Outstanding float64          `json:"outstanding"`
}

// ProfitSummary pairs recognised goods revenue with live product cost.
// Revenue here is the order subtotal: shipping is a pass-through and GST
// belongs to the government, so neither inflates the margin.
type ProfitSummary struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	Revenue float64 `json:"revenue"`
	Cost    float64 `json:"cost"`
	Profit  float64 `json:"profit"`
	// MarginPercent is zero when there is no revenue.
	MarginPercent float64 `json:"margin_percent"`
}

// CollectionSummary measures how much of the booked order value actually
// reached the bank in a period.
type CollectionSummary struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	RecognisedRevenue float64 `json:"recognised_revenue"`
	UnsettledCOD      float64 `json:"unsettled_cod"`
	UnpaidOnline      float64 `json:"unpaid_online"`
	CancelledOrders   int     `json:"cancelled_orders"`

	// EfficiencyPercent is recognised revenue over everything booked in the
	// period; zero when nothing was booked.
	EfficiencyPercent float64 `json:"efficiency_percent"`
}

// TrendPoint is one day of recognised sales.
type TrendPoint struct {
	Date    string  `json:"date"`
	Orders  int     `json:"orders"`
	Revenue float64 `json:"revenue"`
}

// Repository runs the report rollups against Postgres.
type Repository interface {
	SalesSummary(ctx context.Context, from, to time.Time) (SalesSummary, error)
	TaxSummary(ctx context.Context, from, to time.Time) (TaxSummary, error)
	CODExposure(ctx context.Context) (CODExposure, error)
	ProfitSummary(ctx context.Context, from, to time.Time) (ProfitSummary, error)
	CollectionSummary(ctx context.Context, from, to time.Time) (CollectionSummary, error)
	DailyTrend(ctx context.Context, from, to time.Time) ([]TrendPoint, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// recognisedOrders selects orders whose revenue counts in [from, to): paid
// online orders by payment date, settled COD orders by settlement date.
// Cancelled orders never count even when a payment was captured earlier.
const recognisedOrders = `
	SELECT id, payment_method, subtotal, total_amount,
	       CASE WHEN payment_method = 'ONLINE' THEN paid_at ELSE cod_settled_at END AS recognised_at
	FROM orders
	WHERE status <> 'CANCELLED'
	  AND (
	        (payment_method = 'ONLINE' AND payment_status = 'PAID' AND paid_at >= $1 AND paid_at < $2)
	     OR (payment_method = 'COD' AND cod_state = 'SETTLED' AND cod_settled_at >= $1 AND cod_settled_at < $2)
	  )`

func (r *repository) SalesSummary(ctx context.Context, from, to time.Time) (SalesSummary, error) {
	summary := SalesSummary{From: from, To: to}
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE payment_method = 'ONLINE'),
			COALESCE(SUM(total_amount) FILTER (WHERE payment_method = 'ONLINE'), 0),
			COUNT(*) FILTER (WHERE payment_method = 'COD'),
			COALESCE(SUM(total_amount) FILTER (WHERE payment_method = 'COD'), 0)
		FROM (`+recognisedOrders+`) recognised
	`, from, to).Scan(
		&summary.OnlineOrders, &summary.OnlineRevenue,
		&summary.CODOrders, &summary.CODRevenue,
	)
	if err != nil {
		return SalesSummary{}, err
	}
	summary.TotalOrders = summary.OnlineOrders + summary.CODOrders
	summary.TotalRevenue = summary.OnlineRevenue + summary.CODRevenue
	return summary, nil
}

// TaxSummary aggregates GST from non-voided final invoices. Tax liability
// follows the statutory document, not the payment, so the source of truth
// here is invoice lines rather than orders.
func (r *repository) TaxSummary(ctx context.Context, from, to time.Time) (TaxSummary, error) {
	summary := TaxSummary{From: from, To: to}
	rows, err := r.pool.Query(ctx, `
		SELECT l.gst_rate_percent,
		       COALESCE(SUM(l.taxable_value), 0),
		       COALESCE(SUM(l.cgst_amount), 0),
		       COALESCE(SUM(l.sgst_amount), 0),
		       COALESCE(SUM(l.igst_amount), 0)
		FROM invoice_lines l
		JOIN invoices i ON i.id = l.invoice_id
		WHERE i.invoice_type = 'FINAL'
		  AND NOT i.voided
		  AND i.issued_at >= $1 AND i.issued_at < $2
		GROUP BY l.gst_rate_percent
		ORDER BY l.gst_rate_percent
	`, from, to)
	if err != nil {
		return TaxSummary{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var row TaxSummaryRow
		if err := rows.Scan(&row.RatePercent, &row.TaxableValue, &row.CGST, &row.SGST, &row.IGST); err != nil {
			return TaxSummary{}, err
		}
		summary.Rows = append(summary.Rows, row)
		summary.TaxableTotal += row.TaxableValue
		summary.CGSTTotal += row.CGST
		summary.SGSTTotal += row.SGST
		summary.IGSTTotal += row.IGST
	}
	return summary, rows.Err()
}

func (r *repository) CODExposure(ctx context.Context) (CODExposure, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT COALESCE(cod_state, 'PENDING'), COUNT(*), COALESCE(SUM(total_amount), 0)
		FROM orders
		WHERE payment_method = 'COD'
		  AND status = 'DELIVERED'
		GROUP BY COALESCE(cod_state, 'PENDING')
		ORDER BY 1
	`)
	if err != nil {
		return CODExposure{}, err
	}
	defer rows.Close()

	var exposure CODExposure
	for rows.Next() {
		var row CODExposureRow
		if err := rows.Scan(&row.State, &row.Orders, &row.Amount); err != nil {
			return CODExposure{}, err
		}
		exposure.Rows = append(exposure.Rows, row)
		if row.State != "SETTLED" {
			exposure.Outstanding += row.Amount
		}
	}
	return exposure, rows.Err()
}

// ProfitSummary joins recognised orders with the live catalog cost price so
// corrected costs flow into re-run reports. Revenue sums the goods subtotal,
// not the invoiced total; margin math happens in the service.
func (r *repository) ProfitSummary(ctx context.Context, from, to time.Time) (ProfitSummary, error) {
	summary := ProfitSummary{From: from, To: to}
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(recognised.subtotal), 0),
		       COALESCE(SUM(costs.cost), 0)
		FROM (`+recognisedOrders+`) recognised
		LEFT JOIN LATERAL (
			SELECT SUM(oi.quantity * p.cost_price) AS cost
			FROM order_items oi
			JOIN products p ON p.id = oi.product_id
			WHERE oi.order_id = recognised.id
		) costs ON TRUE
	`, from, to).Scan(&summary.Revenue, &summary.Cost)
	if err != nil {
		return ProfitSummary{}, err
	}
	return summary, nil
}

// CollectionSummary buckets the period's order value: recognised by payment
// or settlement date, still-in-flight COD and online amounts by booking
// date. Cancelled orders are counted and excluded from every bucket.
func (r *repository) CollectionSummary(ctx context.Context, from, to time.Time) (CollectionSummary, error) {
	summary := CollectionSummary{From: from, To: to}
	err := r.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(total_amount) FILTER (WHERE status <> 'CANCELLED' AND (
				   (payment_method = 'ONLINE' AND payment_status = 'PAID' AND paid_at >= $1 AND paid_at < $2)
				OR (payment_method = 'COD' AND cod_state = 'SETTLED' AND cod_settled_at >= $1 AND cod_settled_at < $2)
			)), 0),
			COALESCE(SUM(total_amount) FILTER (WHERE status <> 'CANCELLED'
				AND payment_method = 'COD' AND COALESCE(cod_state, '') <> 'SETTLED'
				AND created_at >= $1 AND created_at < $2), 0),
			COALESCE(SUM(total_amount) FILTER (WHERE status <> 'CANCELLED'
				AND payment_method = 'ONLINE' AND payment_status <> 'PAID'
				AND created_at >= $1 AND created_at < $2), 0),
			COUNT(*) FILTER (WHERE status = 'CANCELLED' AND created_at >= $1 AND created_at < $2)
		FROM orders
	`, from, to).Scan(
		&summary.RecognisedRevenue, &summary.UnsettledCOD,
		&summary.UnpaidOnline, &summary.CancelledOrders,
	)
	if err != nil {
		return CollectionSummary{}, err
	}
	return summary, nil
}

func (r *repository) DailyTrend(ctx context.Context, from, to time.Time) ([]TrendPoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT TO_CHAR(recognised_at, 'YYYY-MM-DD') AS day, COUNT(*), COALESCE(SUM(total_amount), 0)
		FROM (`+recognisedOrders+`) recognised
		GROUP BY day
		ORDER BY day
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []TrendPoint
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Date, &p.Orders, &p.Revenue); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
