package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirana-commerce/kirana-commerce/internal/platform/db"
)

// Repository abstracts ledger persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListEntries(ctx context.Context, subjectType, subjectID string, limit int) ([]Entry, error)
	GetBalance(ctx context.Context, subjectType, subjectID string) (Balance, error)
	ListSubjects(ctx context.Context, subjectType string) ([]Balance, error)
}

// TxRepository exposes transactional ledger writes.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, subjectType, subjectID string) (Balance, error)
	InsertEntry(ctx context.Context, entry Entry) error
	UpsertBalance(ctx context.Context, balance Balance) error
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
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) ListEntries(ctx context.Context, subjectType, subjectID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 500
	}
	const query = `
		SELECT id, subject_type, subject_id, action, delta,
		       previous_balance, new_balance, actor_id,
		       COALESCE(note, ''), COALESCE(ref_key, ''), created_at
		FROM ledger_entries
		WHERE subject_type = $1 AND subject_id = $2
		ORDER BY created_at, id
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, subjectType, subjectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.SubjectType, &e.SubjectID, &e.Action, &e.Delta,
			&e.PreviousBalance, &e.NewBalance, &e.ActorID,
			&e.Note, &e.RefKey, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) GetBalance(ctx context.Context, subjectType, subjectID string) (Balance, error) {
	return scanBalance(r.pool.QueryRow(ctx, `
		SELECT subject_type, subject_id, balance, updated_at
		FROM ledger_balances
		WHERE subject_type = $1 AND subject_id = $2
	`, subjectType, subjectID))
}

func (r *repository) ListSubjects(ctx context.Context, subjectType string) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT subject_type, subject_id, balance, updated_at
		FROM ledger_balances
		WHERE subject_type = $1
		ORDER BY subject_id
	`, subjectType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.SubjectType, &b.SubjectID, &b.Balance, &b.UpdatedAt); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func (t *txRepository) GetBalanceForUpdate(ctx context.Context, subjectType, subjectID string) (Balance, error) {
	return scanBalance(t.tx.QueryRow(ctx, `
		SELECT subject_type, subject_id, balance, updated_at
		FROM ledger_balances
		WHERE subject_type = $1 AND subject_id = $2
		FOR UPDATE
	`, subjectType, subjectID))
}

func (t *txRepository) InsertEntry(ctx context.Context, e Entry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ledger_entries
			(id, subject_type, subject_id, action, delta,
			 previous_balance, new_balance, actor_id, note, ref_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11)
	`, e.ID, e.SubjectType, e.SubjectID, e.Action, e.Delta,
		e.PreviousBalance, e.NewBalance, e.ActorID, e.Note, e.RefKey, e.CreatedAt)
	if db.IsUniqueViolation(err, "uq_ledger_entries_ref_key") {
		return ErrDuplicateRef
	}
	return err
}

func (t *txRepository) UpsertBalance(ctx context.Context, b Balance) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ledger_balances (subject_type, subject_id, balance, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject_type, subject_id)
		DO UPDATE SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at
	`, b.SubjectType, b.SubjectID, b.Balance, b.UpdatedAt)
	return err
}

func scanBalance(row pgx.Row) (Balance, error) {
	var b Balance
	err := row.Scan(&b.SubjectType, &b.SubjectID, &b.Balance, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, ErrBalanceNotFound
	}
	if err != nil {
		return Balance{}, err
	}
	return b, nil
}
