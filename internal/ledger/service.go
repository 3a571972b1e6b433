package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Subject types tracked by the storefront core.
const (
	SubjectStock   = "stock"    // product stock quantity, subject id = product id
	SubjectCODCash = "cod_cash" // settled cash, subject id = merchant account
)

// Service coordinates audited balance changes.
type Service struct {
	repo     Repository
	allowNeg bool
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// AllowNegativeBalance disables the negative-balance guard, e.g. for
	// merchants selling made-to-order goods.
	AllowNegativeBalance bool
}

// NewService builds a Service.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	return &Service{repo: repo, allowNeg: cfg.AllowNegativeBalance}
}

// Append records one balance change. The entry row is written before the
// balance update inside the same transaction; if the storage layer ever
// splits the two, a crash leaves an orphaned entry rather than an unaudited
// balance change.
func (s *Service) Append(ctx context.Context, input AppendInput) (Entry, error) {
	if input.SubjectType == "" || input.SubjectID == "" {
		return Entry{}, errors.New("ledger: subject required")
	}
	if !input.Action.IsValid() {
		return Entry{}, ErrInvalidAction
	}
	if math.Abs(input.Delta) < 1e-9 {
		return Entry{}, ErrInvalidDelta
	}

	now := time.Now().UTC()
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		balance, err := tx.GetBalanceForUpdate(ctx, input.SubjectType, input.SubjectID)
		if err != nil && !errors.Is(err, ErrBalanceNotFound) {
			return err
		}
		if errors.Is(err, ErrBalanceNotFound) {
			balance = Balance{SubjectType: input.SubjectType, SubjectID: input.SubjectID}
		}

		newBalance := balance.Balance + input.Delta
		if math.Abs(newBalance) < 1e-9 {
			newBalance = 0
		}
		if !s.allowNeg && newBalance < 0 {
			return fmt.Errorf("%w: %s/%s would reach %.2f", ErrNegativeBalance, input.SubjectType, input.SubjectID, newBalance)
		}

		entry = Entry{
			ID:              uuid.NewString(),
			SubjectType:     input.SubjectType,
			SubjectID:       input.SubjectID,
			Action:          input.Action,
			Delta:           input.Delta,
			PreviousBalance: balance.Balance,
			NewBalance:      newBalance,
			ActorID:         input.ActorID,
			Note:            input.Note,
			RefKey:          input.RefKey,
			CreatedAt:       now,
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return err
		}

		balance.Balance = newBalance
		balance.UpdatedAt = now
		return tx.UpsertBalance(ctx, balance)
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Entries lists a subject's audit trail in write order.
func (s *Service) Entries(ctx context.Context, subjectType, subjectID string, limit int) ([]Entry, error) {
	if subjectType == "" || subjectID == "" {
		return nil, errors.New("ledger: subject required")
	}
	return s.repo.ListEntries(ctx, subjectType, subjectID, limit)
}

// CurrentBalance returns the stored balance for a subject, zero when no
// entry was ever written.
func (s *Service) CurrentBalance(ctx context.Context, subjectType, subjectID string) (float64, error) {
	balance, err := s.repo.GetBalance(ctx, subjectType, subjectID)
	if errors.Is(err, ErrBalanceNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance.Balance, nil
}

// Replay reconstructs a subject's balance from its entries and compares it
// with the stored value. Drift indicates a write-path bug and is surfaced,
// never repaired silently.
func (s *Service) Replay(ctx context.Context, subjectType, subjectID string) (ReplayResult, error) {
	entries, err := s.repo.ListEntries(ctx, subjectType, subjectID, 0)
	if err != nil {
		return ReplayResult{}, err
	}
	var replayed float64
	for _, e := range entries {
		if diff := e.NewBalance - (e.PreviousBalance + e.Delta); math.Abs(diff) > 1e-6 {
			return ReplayResult{}, fmt.Errorf("ledger: entry %s breaks balance chain by %.6f", e.ID, diff)
		}
		replayed += e.Delta
	}
	stored, err := s.CurrentBalance(ctx, subjectType, subjectID)
	if err != nil {
		return ReplayResult{}, err
	}
	return ReplayResult{
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Replayed:    replayed,
		Stored:      stored,
		Entries:     len(entries),
	}, nil
}

// ScanSubjects replays every subject of a type and returns the out-of-sync
// ones. The nightly integrity job feeds on this.
func (s *Service) ScanSubjects(ctx context.Context, subjectType string) ([]ReplayResult, error) {
	balances, err := s.repo.ListSubjects(ctx, subjectType)
	if err != nil {
		return nil, err
	}
	var drifted []ReplayResult
	for _, b := range balances {
		result, err := s.Replay(ctx, b.SubjectType, b.SubjectID)
		if err != nil {
			return nil, err
		}
		if !result.InSync() {
			drifted = append(drifted, result)
		}
	}
	return drifted, nil
}
