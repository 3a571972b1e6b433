package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirana-commerce/kirana-commerce/internal/platform/db"
)

// Repository defines order persistence.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (*Order, error)
	List(ctx context.Context, req ListRequest) ([]Order, int, error)
	ListFinalInvoicePending(ctx context.Context, limit int) ([]int64, error)

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional write operations.
type TxRepository interface {
	GetByIDForUpdate(ctx context.Context, id int64) (*Order, error)
	GenerateOrderNumber(ctx context.Context, at time.Time) (string, error)
	CreateOrder(ctx context.Context, o Order) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status Status, updates map[string]interface{}) error
	UpdateOrder(ctx context.Context, id int64, updates map[string]interface{}) error
	DeleteInvoicesForOrder(ctx context.Context, orderID int64) (int64, error)
	DeleteItems(ctx context.Context, orderID int64) error
	DeleteOrder(ctx context.Context, orderID int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction with bounded
// retries on transient contention.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxRetry(ctx, r.pool, 3, 100*time.Millisecond, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const orderColumns = `
	id, order_number, customer_name, customer_email, COALESCE(customer_gstin, ''),
	ship_address, ship_city, ship_state, ship_pincode,
	status, payment_method, payment_status, payment_id, paid_at,
	subtotal, shipping_amount, tax_amount, total_amount,
	courier_name, tracking_id, tracking_url, expected_delivery_date,
	COALESCE(cod_state, ''), cod_courier, cod_collected_at, cod_settled_at,
	cod_confirmed_by, cod_confirmed_at,
	final_invoice_pending,
	cancelled_by, cancelled_at, cancellation_reason,
	created_by, created_at, updated_at, shipped_at, delivered_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerName, &o.CustomerEmail, &o.CustomerGSTIN,
		&o.ShipAddress, &o.ShipCity, &o.ShipState, &o.ShipPincode,
		&o.Status, &o.PaymentMethod, &o.PaymentStatus, &o.PaymentID, &o.PaidAt,
		&o.Subtotal, &o.ShippingAmount, &o.TaxAmount, &o.TotalAmount,
		&o.CourierName, &o.TrackingID, &o.TrackingURL, &o.ExpectedDeliveryDate,
		&o.CODState, &o.CODCourier, &o.CODCollectedAt, &o.CODSettledAt,
		&o.CODConfirmedBy, &o.CODConfirmedAt,
		&o.FinalInvoicePending,
		&o.CancelledBy, &o.CancelledAt, &o.CancellationReason,
		&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt, &o.ShippedAt, &o.DeliveredAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	o.Items, err = getItems(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repository) GetByNumber(ctx context.Context, orderNumber string) (*Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber))
	if err != nil {
		return nil, err
	}
	o.Items, err = getItems(ctx, r.pool, o.ID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getItems(ctx context.Context, q queryer, orderID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price,
		       gst_rate_percent, taxable_value, cgst_amount, sgst_amount,
		       igst_amount, line_total
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity,
			&it.UnitPrice, &it.GSTRatePercent, &it.TaxableValue, &it.CGSTAmount,
			&it.SGSTAmount, &it.IGSTAmount, &it.LineTotal,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) List(ctx context.Context, req ListRequest) ([]Order, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	if req.PaymentMethod != nil {
		conditions = append(conditions, fmt.Sprintf("payment_method = $%d", argPos))
		args = append(args, *req.PaymentMethod)
		argPos++
	}
	if req.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argPos))
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argPos))
		args = append(args, *req.DateTo)
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM orders %s", whereClause), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *o)
	}
	return list, total, rows.Err()
}

// ListFinalInvoicePending returns ids of delivered orders still waiting for
// their final invoice. The retry job uses this as a safety net beyond the
// queued tasks.
func (r *repository) ListFinalInvoicePending(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM orders
		WHERE final_invoice_pending AND status = $1
		ORDER BY delivered_at
		LIMIT $2
	`, StatusDelivered, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *txRepository) GetByIDForUpdate(ctx context.Context, id int64) (*Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	o.Items, err = getItems(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// GenerateOrderNumber allocates the next sequential number for the month,
// e.g. ORD-202608-0042. The sequence row is locked by the upsert, so two
// concurrent checkouts cannot draw the same number.
func (t *txRepository) GenerateOrderNumber(ctx context.Context, at time.Time) (string, error) {
	period := at.Format("200601")
	var seq int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO order_sequences (period, last_value)
		VALUES ($1, 1)
		ON CONFLICT (period) DO UPDATE SET last_value = order_sequences.last_value + 1
		RETURNING last_value
	`, period).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("generate order number: %w", err)
	}
	return fmt.Sprintf("ORD-%s-%04d", period, seq), nil
}

func (t *txRepository) CreateOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders (
			order_number, customer_name, customer_email, customer_gstin,
			ship_address, ship_city, ship_state, ship_pincode,
			status, payment_method, payment_status,
			subtotal, shipping_amount, tax_amount, total_amount,
			cod_state, final_invoice_pending, created_by, created_at, updated_at
		) VALUES (
			$1, $2, $3, NULLIF($4, ''),
			$5, $6, $7, $8,
			$9, $10, $11,
			$12, $13, $14, $15,
			NULLIF($16, ''), FALSE, $17, NOW(), NOW()
		)
		RETURNING id
	`, o.OrderNumber, o.CustomerName, o.CustomerEmail, o.CustomerGSTIN,
		o.ShipAddress, o.ShipCity, o.ShipState, o.ShipPincode,
		o.Status, o.PaymentMethod, o.PaymentStatus,
		o.Subtotal, o.ShippingAmount, o.TaxAmount, o.TotalAmount,
		string(o.CODState), o.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepository) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO order_items (
			order_id, product_id, product_name, quantity, unit_price,
			gst_rate_percent, taxable_value, cgst_amount, sgst_amount,
			igst_amount, line_total
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, item.OrderID, item.ProductID, item.ProductName, item.Quantity,
		item.UnitPrice, item.GSTRatePercent, item.TaxableValue, item.CGSTAmount,
		item.SGSTAmount, item.IGSTAmount, item.LineTotal).Scan(&id)
	return id, err
}

// allowed columns for dynamic updates
var updatableColumns = map[string]bool{
	"payment_status": true, "payment_id": true, "paid_at": true,
	"courier_name": true, "tracking_id": true, "tracking_url": true,
	"expected_delivery_date": true, "shipped_at": true, "delivered_at": true,
	"final_invoice_pending": true,
	"cod_state":             true, "cod_courier": true, "cod_collected_at": true,
	"cod_settled_at": true, "cod_confirmed_by": true, "cod_confirmed_at": true,
	"cancelled_by": true, "cancelled_at": true, "cancellation_reason": true,
}

func buildUpdate(id int64, updates map[string]interface{}) (string, []interface{}, error) {
	query := "UPDATE orders SET updated_at = NOW()"
	args := []interface{}{}
	argPos := 1
	for col, val := range updates {
		if !updatableColumns[col] && col != "status" {
			return "", nil, fmt.Errorf("column %q is not updatable", col)
		}
		query += fmt.Sprintf(", %s = $%d", col, argPos)
		args = append(args, val)
		argPos++
	}
	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, id)
	return query, args, nil
}

func (t *txRepository) UpdateStatus(ctx context.Context, id int64, status Status, updates map[string]interface{}) error {
	merged := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		merged[k] = v
	}
	merged["status"] = status
	return t.UpdateOrder(ctx, id, merged)
}

func (t *txRepository) UpdateOrder(ctx context.Context, id int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	query, args, err := buildUpdate(id, updates)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) DeleteInvoicesForOrder(ctx context.Context, orderID int64) (int64, error) {
	if _, err := t.tx.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_id IN (SELECT id FROM invoices WHERE order_id = $1)`, orderID); err != nil {
		return 0, err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM invoices WHERE order_id = $1`, orderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepository) DeleteItems(ctx context.Context, orderID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID)
	return err
}

func (t *txRepository) DeleteOrder(ctx context.Context, orderID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
