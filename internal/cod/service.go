package cod

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirana-commerce/kirana-commerce/internal/ledger"
	"github.com/kirana-commerce/kirana-commerce/internal/shared"
)

// CashLedger records settled COD cash into the ledger.
type CashLedger interface {
	Append(ctx context.Context, input ledger.AppendInput) (ledger.Entry, error)
}

// Service implements the COD settlement flow. Every transition is an
// explicit administrative confirmation against a row-locked order.
type Service struct {
	repo   Repository
	cash   CashLedger
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// ServiceConfig carries the collaborators the service needs.
type ServiceConfig struct {
	Cash   CashLedger
	Audit  shared.AuditRecorder
	Logger *slog.Logger
}

// NewService constructs the settlement service.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cash: cfg.Cash, audit: cfg.Audit, logger: logger}
}

// Status returns the settlement view of one order.
func (s *Service) Status(ctx context.Context, orderID int64) (*OrderView, error) {
	view, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if view.PaymentMethod != "COD" {
		return nil, ErrNotCOD
	}
	return view, nil
}

// ListOutstanding returns delivered COD orders whose cash is still in
// transit somewhere between courier and bank.
func (s *Service) ListOutstanding(ctx context.Context, limit, offset int) ([]OrderView, int, error) {
	return s.repo.ListOutstanding(ctx, limit, offset)
}

// ConfirmCollection records that the courier collected cash at the door.
func (s *Service) ConfirmCollection(ctx context.Context, actor shared.Actor, orderID int64, courier string) (*OrderView, error) {
	return s.advance(ctx, actor, orderID, StateCollectedByCourier, func(view *OrderView, updates map[string]interface{}) {
		if courier != "" {
			updates["cod_courier"] = courier
		}
		updates["cod_collected_at"] = time.Now()
	})
}

// ConfirmRemittance records that the courier handed the cash over and it is
// on its way to the merchant's account.
func (s *Service) ConfirmRemittance(ctx context.Context, actor shared.Actor, orderID int64) (*OrderView, error) {
	return s.advance(ctx, actor, orderID, StateAwaitingSettlement, nil)
}

// ConfirmSettled records the amount arriving in the bank account. This is
// the moment COD revenue becomes recognisable, so the cash ledger entry is
// written before the state flips; a crash in between is healed by the
// retryable confirmation deduplicating on its reference key.
func (s *Service) ConfirmSettled(ctx context.Context, actor shared.Actor, orderID int64) (*OrderView, error) {
	view, err := s.Status(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !view.State.CanAdvanceTo(StateSettled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, view.State, StateSettled)
	}

	_, err = s.cash.Append(ctx, ledger.AppendInput{
		SubjectType: ledger.SubjectCODCash,
		SubjectID:   "merchant",
		Action:      ledger.ActionAdd,
		Delta:       view.TotalAmount,
		ActorID:     actor.ID,
		Note:        fmt.Sprintf("cod settled for %s", view.OrderNumber),
		RefKey:      fmt.Sprintf("cod:settle:%d", orderID),
	})
	if err != nil && !errors.Is(err, ledger.ErrDuplicateRef) {
		return nil, fmt.Errorf("cod cash ledger: %w", err)
	}

	now := time.Now()
	return s.advance(ctx, actor, orderID, StateSettled, func(view *OrderView, updates map[string]interface{}) {
		updates["cod_settled_at"] = now
		updates["cod_confirmed_by"] = actor.ID
		updates["cod_confirmed_at"] = now
	})
}

// ReportNotReceived flags cash that never arrived for manual follow-up.
func (s *Service) ReportNotReceived(ctx context.Context, actor shared.Actor, orderID int64, reason string) (*OrderView, error) {
	view, err := s.advance(ctx, actor, orderID, StateNotReceived, nil)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor.ID, "cod.not_received", orderID, map[string]any{
		"order_number": view.OrderNumber,
		"reason":       reason,
	})
	return view, nil
}

// advance applies one guarded settlement transition under a row lock.
func (s *Service) advance(ctx context.Context, actor shared.Actor, orderID int64, target State, mutate func(*OrderView, map[string]interface{})) (*OrderView, error) {
	if actor.ID == 0 {
		return nil, shared.ErrActorRequired
	}
	var fromState State
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		view, err := tx.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if view.PaymentMethod != "COD" {
			return ErrNotCOD
		}
		if view.OrderStatus != "DELIVERED" {
			return fmt.Errorf("%w: order is %s, cash moves only after delivery",
				ErrIllegalTransition, view.OrderStatus)
		}
		state := view.State
		if state == "" {
			state = StatePending
		}
		if !state.CanAdvanceTo(target) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, state, target)
		}
		fromState = state

		updates := map[string]interface{}{"cod_state": target}
		if mutate != nil {
			mutate(view, updates)
		}
		return tx.Update(ctx, orderID, updates)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor.ID, "cod.transition", orderID, map[string]any{
		"from": fromState,
		"to":   target,
	})
	return s.repo.Get(ctx, orderID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "cod_settlement",
		EntityID: fmt.Sprintf("%d", orderID),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Error("audit record failed", "action", action, "order_id", orderID, "error", err)
	}
}
