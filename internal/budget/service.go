package budget

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBudget(ctx context.Context, id uuid.UUID) (Budget, error)
}

// TxRepository exposes operations executed inside one transaction.
type TxRepository interface {
	InsertBudget(ctx context.Context, b Budget) error
	GetBudget(ctx context.Context, id uuid.UUID) (Budget, error)
	// SaveItems replaces the items and totals, provided the budget is still
	// in status.
	SaveItems(ctx context.Context, b Budget, status lifecycle.State) (bool, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to lifecycle.State, at time.Time) (bool, error)
}

// Service drafts budgets, records actuals and drives their lifecycle.
type Service struct {
	repo    RepositoryPort
	history shared.HistoryPort
	now     func() time.Time
	newID   func() uuid.UUID
}

// NewService constructs the budget service.
func NewService(repo RepositoryPort, history shared.HistoryPort) *Service {
	return &Service{repo: repo, history: history, now: time.Now, newID: uuid.New}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateBudget stores a DRAFT budget with derived variances and totals.
func (s *Service) CreateBudget(ctx context.Context, input CreateInput) (Budget, error) {
	if err := input.Validate(); err != nil {
		return Budget{}, err
	}
	now := s.now()
	b := Recompute(Budget{
		ID:         s.newID(),
		Code:       input.Code,
		Name:       input.Name,
		FiscalYear: input.FiscalYear,
		Status:     lifecycle.StateDraft,
		Threshold:  input.Threshold,
		Items:      BuildItems(input.Items, input.Threshold),
		CreatedBy:  input.ActorID,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertBudget(ctx, b)
	}); err != nil {
		return Budget{}, err
	}
	s.audit(ctx, input.ActorID, "budget.create", b.ID, map[string]any{
		"code":         b.Code,
		"items":        len(b.Items),
		"total_budget": b.TotalBudget.String(),
	})
	return b, nil
}

// GetBudget returns a budget with its items.
func (s *Service) GetBudget(ctx context.Context, id uuid.UUID) (Budget, error) {
	return s.repo.GetBudget(ctx, id)
}

// ReplaceItems swaps the items of a DRAFT budget and recomputes totals.
func (s *Service) ReplaceItems(ctx context.Context, id uuid.UUID, actorID int64, items []ItemInput) (Budget, error) {
	if err := ValidateItems(items); err != nil {
		return Budget{}, err
	}
	var out Budget
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBudget(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != lifecycle.StateDraft {
			return ErrItemsLocked
		}
		next := current
		next.Items = BuildItems(items, current.Threshold)
		next = Recompute(next)
		next.UpdatedAt = s.now()
		ok, err := tx.SaveItems(ctx, next, current.Status)
		if err != nil {
			return err
		}
		if !ok {
			return &shared.StaleStateError{Entity: "budget", ID: id.String(), Expected: string(current.Status)}
		}
		out = next
		return nil
	})
	if err != nil {
		return Budget{}, err
	}
	s.audit(ctx, actorID, "budget.items.replace", id, map[string]any{"items": len(items)})
	return out, nil
}

// RecordActuals updates actual amounts of existing lines. Planned amounts
// stay fixed; actuals keep flowing in until the budget is posted.
func (s *Service) RecordActuals(ctx context.Context, id uuid.UUID, actorID int64, actuals []ActualInput) (Budget, error) {
	var out Budget
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBudget(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != lifecycle.StateDraft && current.Status != lifecycle.StateApproved {
			return ErrActualsLocked
		}
		next, err := applyActuals(current, actuals)
		if err != nil {
			return err
		}
		next.UpdatedAt = s.now()
		ok, err := tx.SaveItems(ctx, next, current.Status)
		if err != nil {
			return err
		}
		if !ok {
			return &shared.StaleStateError{Entity: "budget", ID: id.String(), Expected: string(current.Status)}
		}
		out = next
		return nil
	})
	if err != nil {
		return Budget{}, err
	}
	s.audit(ctx, actorID, "budget.actuals.record", id, map[string]any{
		"lines":        len(actuals),
		"total_actual": out.TotalActual.String(),
	})
	return out, nil
}

func applyActuals(b Budget, actuals []ActualInput) (Budget, error) {
	items := append([]BudgetItem(nil), b.Items...)
	index := make(map[int]int, len(items))
	for i, it := range items {
		index[it.LineNumber] = i
	}
	for _, a := range actuals {
		i, ok := index[a.LineNumber]
		if !ok {
			return Budget{}, &shared.InvalidLineShapeError{Line: a.LineNumber, Reason: "no such budget line"}
		}
		if err := shared.RequireNonNegative("actual_amount", a.ActualAmount); err != nil {
			return Budget{}, err
		}
		items[i].ActualAmount = a.ActualAmount
	}
	b.Items = items
	return Recompute(b), nil
}

// Transition applies a lifecycle action. Approve and post require every
// item to be present and categorised.
func (s *Service) Transition(ctx context.Context, input TransitionInput) (Budget, error) {
	if input.BudgetID == uuid.Nil {
		return Budget{}, errors.New("budget: budget id required")
	}
	var (
		out Budget
		res lifecycle.Result
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBudget(ctx, input.BudgetID)
		if err != nil {
			return err
		}
		res, err = lifecycle.Apply(lifecycle.Request{
			Kind:     lifecycle.KindBudget,
			ID:       current.ID.String(),
			Current:  current.Status,
			Expected: input.ExpectedStatus,
			Action:   input.Action,
		}, func(action lifecycle.Action, _ lifecycle.State) error {
			if action == lifecycle.ActionApprove || action == lifecycle.ActionPost {
				return RequireComplete(current, action)
			}
			return nil
		})
		if err != nil {
			return err
		}
		now := s.now()
		ok, err := tx.CompareAndSetStatus(ctx, current.ID, res.From, res.To, now)
		if err != nil {
			return err
		}
		if !ok {
			return &shared.StaleStateError{Entity: "budget", ID: current.ID.String(), Expected: string(res.From)}
		}
		current.Status = res.To
		current.UpdatedAt = now
		out = current
		return nil
	})
	if err != nil {
		return Budget{}, err
	}
	if s.history != nil {
		_ = s.history.RecordTransition(ctx, res.Log(input.ActorID, input.Note, s.now()))
	}
	return out, nil
}

func (s *Service) audit(ctx context.Context, actorID int64, action string, id uuid.UUID, meta map[string]any) {
	if s.history == nil {
		return
	}
	_ = s.history.RecordAudit(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "budget",
		EntityID: id.String(),
		Meta:     meta,
		At:       s.now(),
	})
}
