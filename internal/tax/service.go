package tax

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
	GetReturn(ctx context.Context, id uuid.UUID) (Return, error)
}

// TxRepository exposes operations executed inside one transaction.
type TxRepository interface {
	// InsertReturn fails with ErrReturnExists when the period is taken.
	InsertReturn(ctx context.Context, r Return) error
	GetReturn(ctx context.Context, id uuid.UUID) (Return, error)
	// SaveTransactions replaces transactions and figures while status holds.
	SaveTransactions(ctx context.Context, r Return, status lifecycle.State) (bool, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to lifecycle.State, at time.Time) (bool, error)
}

// Service files periodic tax returns.
type Service struct {
	repo    RepositoryPort
	history shared.HistoryPort
	now     func() time.Time
	newID   func() uuid.UUID
}

// NewService constructs the tax service.
func NewService(repo RepositoryPort, history shared.HistoryPort) *Service {
	return &Service{repo: repo, history: history, now: time.Now, newID: uuid.New}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Preview nets transactions without storing anything. Undated
// transactions are dated today.
func (s *Service) Preview(inputs []TransactionInput) ([]Transaction, NetResult, error) {
	dated := make([]TransactionInput, len(inputs))
	for i, in := range inputs {
		if in.TransactionDate.IsZero() {
			in.TransactionDate = s.now()
		}
		dated[i] = in
	}
	txs, err := BuildTransactions(dated)
	if err != nil {
		return nil, NetResult{}, err
	}
	return txs, Net(txs), nil
}

// CreateReturn drafts the return for a period. One return per period.
func (s *Service) CreateReturn(ctx context.Context, input CreateInput) (Return, error) {
	if err := input.Period.Validate(); err != nil {
		return Return{}, err
	}
	txs, result, err := s.Preview(input.Transactions)
	if err != nil {
		return Return{}, err
	}
	now := s.now()
	ret := Return{
		ID:           s.newID(),
		Period:       input.Period,
		Status:       lifecycle.StateDraft,
		Result:       result,
		Transactions: txs,
		CreatedBy:    input.ActorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertReturn(ctx, ret)
	}); err != nil {
		return Return{}, err
	}
	s.audit(ctx, input.ActorID, "tax.return.create", ret.ID, map[string]any{
		"period":   ret.Period.String(),
		"net_tax":  ret.Result.NetTax.String(),
		"position": string(ret.Result.Position),
	})
	return ret, nil
}

// GetReturn returns a tax return with its transactions.
func (s *Service) GetReturn(ctx context.Context, id uuid.UUID) (Return, error) {
	return s.repo.GetReturn(ctx, id)
}

// ReplaceTransactions swaps the transactions of a DRAFT return and re-nets it.
func (s *Service) ReplaceTransactions(ctx context.Context, id uuid.UUID, actorID int64, inputs []TransactionInput) (Return, error) {
	txs, result, err := s.Preview(inputs)
	if err != nil {
		return Return{}, err
	}
	var out Return
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetReturn(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != lifecycle.StateDraft {
			return ErrReturnLocked
		}
		next := current
		next.Transactions = txs
		next.Result = result
		next.UpdatedAt = s.now()
		ok, err := tx.SaveTransactions(ctx, next, current.Status)
		if err != nil {
			return err
		}
		if !ok {
			return &shared.StaleStateError{Entity: "tax_return", ID: id.String(), Expected: string(current.Status)}
		}
		out = next
		return nil
	})
	if err != nil {
		return Return{}, err
	}
	s.audit(ctx, actorID, "tax.return.transactions", id, map[string]any{
		"transactions": len(txs),
		"net_tax":      result.NetTax.String(),
	})
	return out, nil
}

// Transition applies a lifecycle action. Approve and post require a
// non-empty return whose figures reconcile with its transactions.
func (s *Service) Transition(ctx context.Context, input TransitionInput) (Return, error) {
	if input.ReturnID == uuid.Nil {
		return Return{}, errors.New("tax: return id required")
	}
	var (
		out Return
		res lifecycle.Result
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetReturn(ctx, input.ReturnID)
		if err != nil {
			return err
		}
		res, err = lifecycle.Apply(lifecycle.Request{
			Kind:     lifecycle.KindTaxReturn,
			ID:       current.ID.String(),
			Current:  current.Status,
			Expected: input.ExpectedStatus,
			Action:   input.Action,
		}, func(action lifecycle.Action, _ lifecycle.State) error {
			if action == lifecycle.ActionApprove || action == lifecycle.ActionPost {
				return RequireFileable(current, action)
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
			return &shared.StaleStateError{Entity: "tax_return", ID: current.ID.String(), Expected: string(res.From)}
		}
		current.Status = res.To
		current.UpdatedAt = now
		out = current
		return nil
	})
	if err != nil {
		return Return{}, err
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
		Entity:   "tax_return",
		EntityID: id.String(),
		Meta:     meta,
		At:       s.now(),
	})
}
