package invoices

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

// uniqueFinalConstraint is the partial unique index that enforces at most
// one non-voided final invoice per order. Violations resolve to the invoice
// that won the race.
const uniqueFinalConstraint = "uq_invoices_final_per_order"

// Repository defines invoice persistence.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Invoice, error)
	GetByNumber(ctx context.Context, invoiceNumber string) (*Invoice, error)
	FindFinalForOrder(ctx context.Context, orderID int64) (*Invoice, error)
	List(ctx context.Context, req ListRequest) ([]Invoice, int, error)

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional invoice writes.
type TxRepository interface {
	GenerateNumber(ctx context.Context, invoiceType InvoiceType, at time.Time) (string, error)
	Insert(ctx context.Context, inv Invoice) (int64, error)
	MarkVoided(ctx context.Context, id, actorID int64, reason string) error
}

// ErrDuplicateFinal is returned by Insert when the one-final-per-order index
// rejects the row.
var ErrDuplicateFinal = errors.New("duplicate final invoice for order")

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

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxRetry(ctx, r.pool, 3, 100*time.Millisecond, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const invoiceColumns = `
	id, invoice_number, invoice_type, order_id, COALESCE(order_number, ''),
	buyer_name, COALESCE(buyer_email, ''), COALESCE(buyer_gstin, ''),
	buyer_address, buyer_state, seller_state, inter_state,
	subtotal, cgst_total, sgst_total, igst_total, tax_total,
	shipping_amount, grand_total,
	voided, voided_by, voided_at, void_reason,
	delivery_date, issued_at, created_by`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.InvoiceType, &inv.OrderID, &inv.OrderNumber,
		&inv.BuyerName, &inv.BuyerEmail, &inv.BuyerGSTIN,
		&inv.BuyerAddress, &inv.BuyerState, &inv.SellerState, &inv.InterState,
		&inv.Subtotal, &inv.CGSTTotal, &inv.SGSTTotal, &inv.IGSTTotal, &inv.TaxTotal,
		&inv.ShippingAmount, &inv.GrandTotal,
		&inv.Voided, &inv.VoidedBy, &inv.VoidedAt, &inv.VoidReason,
		&inv.DeliveryDate, &inv.IssuedAt, &inv.CreatedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	inv.Lines, err = r.getLines(ctx, id)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *repository) GetByNumber(ctx context.Context, invoiceNumber string) (*Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE invoice_number = $1`, invoiceNumber))
	if err != nil {
		return nil, err
	}
	inv.Lines, err = r.getLines(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// FindFinalForOrder returns the non-voided final invoice for the order, or
// ErrNotFound.
func (r *repository) FindFinalForOrder(ctx context.Context, orderID int64) (*Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE order_id = $1 AND invoice_type = $2 AND NOT voided
	`, orderID, TypeFinal))
	if err != nil {
		return nil, err
	}
	inv.Lines, err = r.getLines(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *repository) getLines(ctx context.Context, invoiceID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, invoice_id, description, quantity, unit_price, taxable_value,
		       gst_rate_percent, cgst_amount, sgst_amount, igst_amount, line_total
		FROM invoice_lines
		WHERE invoice_id = $1
		ORDER BY id
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(
			&l.ID, &l.InvoiceID, &l.Description, &l.Quantity, &l.UnitPrice,
			&l.TaxableValue, &l.GSTRatePercent, &l.CGSTAmount, &l.SGSTAmount,
			&l.IGSTAmount, &l.LineTotal,
		); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *repository) List(ctx context.Context, req ListRequest) ([]Invoice, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if req.InvoiceType != nil {
		conditions = append(conditions, fmt.Sprintf("invoice_type = $%d", argPos))
		args = append(args, *req.InvoiceType)
		argPos++
	}
	if req.OrderID != nil {
		conditions = append(conditions, fmt.Sprintf("order_id = $%d", argPos))
		args = append(args, *req.OrderID)
		argPos++
	}
	if req.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("issued_at >= $%d", argPos))
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("issued_at <= $%d", argPos))
		args = append(args, *req.DateTo)
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM invoices %s", whereClause), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM invoices %s ORDER BY issued_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *inv)
	}
	return list, total, rows.Err()
}

// GenerateNumber allocates the next document number for the month, e.g.
// PI-202608-0007 for proformas and INV-202608-0007 for final invoices. The
// two document types run independent sequences.
func (t *txRepository) GenerateNumber(ctx context.Context, invoiceType InvoiceType, at time.Time) (string, error) {
	prefix := "PI"
	if invoiceType == TypeFinal {
		prefix = "INV"
	}
	period := at.Format("200601")
	var seq int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO invoice_sequences (doc_type, period, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (doc_type, period) DO UPDATE SET last_value = invoice_sequences.last_value + 1
		RETURNING last_value
	`, invoiceType, period).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("generate invoice number: %w", err)
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, period, seq), nil
}

func (t *txRepository) Insert(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO invoices (
			invoice_number, invoice_type, order_id, order_number,
			buyer_name, buyer_email, buyer_gstin, buyer_address, buyer_state,
			seller_state, inter_state,
			subtotal, cgst_total, sgst_total, igst_total, tax_total,
			shipping_amount, grand_total,
			voided, delivery_date, issued_at, created_by
		) VALUES (
			$1, $2, $3, NULLIF($4, ''),
			$5, NULLIF($6, ''), NULLIF($7, ''), $8, $9,
			$10, $11,
			$12, $13, $14, $15, $16,
			$17, $18,
			FALSE, $19, NOW(), $20
		)
		RETURNING id
	`, inv.InvoiceNumber, inv.InvoiceType, inv.OrderID, inv.OrderNumber,
		inv.BuyerName, inv.BuyerEmail, inv.BuyerGSTIN, inv.BuyerAddress, inv.BuyerState,
		inv.SellerState, inv.InterState,
		inv.Subtotal, inv.CGSTTotal, inv.SGSTTotal, inv.IGSTTotal, inv.TaxTotal,
		inv.ShippingAmount, inv.GrandTotal,
		inv.DeliveryDate, inv.CreatedBy).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err, uniqueFinalConstraint) {
			return 0, ErrDuplicateFinal
		}
		return 0, err
	}

	for _, l := range inv.Lines {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO invoice_lines (
				invoice_id, description, quantity, unit_price, taxable_value,
				gst_rate_percent, cgst_amount, sgst_amount, igst_amount, line_total
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, id, l.Description, l.Quantity, l.UnitPrice, l.TaxableValue,
			l.GSTRatePercent, l.CGSTAmount, l.SGSTAmount, l.IGSTAmount, l.LineTotal)
		if err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (t *txRepository) MarkVoided(ctx context.Context, id, actorID int64, reason string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE invoices
		SET voided = TRUE, voided_by = $2, voided_at = NOW(), void_reason = $3
		WHERE id = $1 AND NOT voided
	`, id, actorID, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyVoided
	}
	return nil
}
