package products

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirana-commerce/kirana-commerce/internal/shared"
)

type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	GetMany(ctx context.Context, ids []int64) (map[int64]Product, error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, id int64, product Product) error
	Deactivate(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, code, name, price, cost_price, gst_rate_percent, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM products WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		cond := ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
		query += cond
		countQuery += cond
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		argCount++
		cond := ` AND is_active = $` + strconv.Itoa(argCount)
		query += cond
		countQuery += cond
		args = append(args, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY name`
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)
		if filters.Page > 1 {
			argCount++
			query += ` OFFSET $` + strconv.Itoa(argCount)
			args = append(args, (filters.Page-1)*filters.Limit)
		}
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, p)
	}
	return list, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.ErrNotFound
	}
	return p, err
}

func (r *repository) GetMany(ctx context.Context, ids []int64) (map[int64]Product, error) {
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, p Product) (Product, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx, `
		INSERT INTO products (code, name, price, cost_price, gst_rate_percent, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id
	`, p.Code, p.Name, p.Price, p.CostPrice, p.GSTRatePercent, p.IsActive, now).Scan(&p.ID)
	if err != nil {
		return Product{}, err
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return p, nil
}

func (r *repository) Update(ctx context.Context, id int64, p Product) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE products
		SET code = $2, name = $3, price = $4, cost_price = $5,
		    gst_rate_percent = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1
	`, id, p.Code, p.Name, p.Price, p.CostPrice, p.GSTRatePercent, p.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Price, &p.CostPrice, &p.GSTRatePercent, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
