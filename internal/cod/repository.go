package cod

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirana-commerce/kirana-commerce/internal/platform/db"
)

// OrderView is the slice of an order the settlement flow operates on.
type OrderView struct {
	OrderID       int64      `json:"order_id"`
	OrderNumber   string     `json:"order_number"`
	OrderStatus   string     `json:"order_status"`
	PaymentMethod string     `json:"payment_method"`
	TotalAmount   float64    `json:"total_amount"`
	State         State      `json:"state"`
	Courier       *string    `json:"courier,omitempty"`
	CollectedAt   *time.Time `json:"collected_at,omitempty"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
	ConfirmedBy   *int64     `json:"confirmed_by,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
}

// Repository reads and writes the COD columns of orders.
type Repository interface {
	Get(ctx context.Context, orderID int64) (*OrderView, error)
	ListOutstanding(ctx context.Context, limit, offset int) ([]OrderView, int, error)

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes row-locked settlement writes.
type TxRepository interface {
	GetForUpdate(ctx context.Context, orderID int64) (*OrderView, error)
	Update(ctx context.Context, orderID int64, updates map[string]interface{}) error
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

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxRetry(ctx, r.pool, 3, 100*time.Millisecond, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const viewColumns = `
	id, order_number, status, payment_method, total_amount,
	COALESCE(cod_state, ''), cod_courier, cod_collected_at, cod_settled_at,
	cod_confirmed_by, cod_confirmed_at`

func scanView(row pgx.Row) (*OrderView, error) {
	var v OrderView
	err := row.Scan(
		&v.OrderID, &v.OrderNumber, &v.OrderStatus, &v.PaymentMethod, &v.TotalAmount,
		&v.State, &v.Courier, &v.CollectedAt, &v.SettledAt,
		&v.ConfirmedBy, &v.ConfirmedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repository) Get(ctx context.Context, orderID int64) (*OrderView, error) {
	return scanView(r.pool.QueryRow(ctx, `SELECT `+viewColumns+` FROM orders WHERE id = $1`, orderID))
}

// ListOutstanding returns delivered COD orders whose cash has not settled,
// oldest delivery first.
func (r *repository) ListOutstanding(ctx context.Context, limit, offset int) ([]OrderView, int, error) {
	const where = `
		WHERE payment_method = 'COD'
		  AND status = 'DELIVERED'
		  AND COALESCE(cod_state, '') NOT IN ('SETTLED')`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where).Scan(&total); err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM orders %s
		ORDER BY delivered_at, id
		LIMIT $1 OFFSET $2
	`, viewColumns, where), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []OrderView
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *v)
	}
	return list, total, rows.Err()
}

func (t *txRepository) GetForUpdate(ctx context.Context, orderID int64) (*OrderView, error) {
	return scanView(t.tx.QueryRow(ctx, `SELECT `+viewColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
}

var updatableColumns = map[string]bool{
	"cod_state": true, "cod_courier": true, "cod_collected_at": true,
	"cod_settled_at": true, "cod_confirmed_by": true, "cod_confirmed_at": true,
}

func (t *txRepository) Update(ctx context.Context, orderID int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	query := "UPDATE orders SET updated_at = NOW()"
	args := []interface{}{}
	argPos := 1
	for col, val := range updates {
		if !updatableColumns[col] {
			return fmt.Errorf("cod: column %q is not updatable", col)
		}
		query += fmt.Sprintf(", %s = $%d", col, argPos)
		args = append(args, val)
		argPos++
	}
	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, orderID)

	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}
