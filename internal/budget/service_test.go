package budget

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/shared"
)

type memoryBudgetRepo struct {
	budgets map[uuid.UUID]Budget
}

type memoryBudgetTx struct {
	repo *memoryBudgetRepo
}

func newMemoryBudgetRepo() *memoryBudgetRepo {
	return &memoryBudgetRepo{budgets: make(map[uuid.UUID]Budget)}
}

func (r *memoryBudgetRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryBudgetTx{repo: r})
}

func (r *memoryBudgetRepo) GetBudget(_ context.Context, id uuid.UUID) (Budget, error) {
	b, ok := r.budgets[id]
	if !ok {
		return Budget{}, ErrBudgetNotFound
	}
	b.Items = append([]BudgetItem(nil), b.Items...)
	return b, nil
}

func (t *memoryBudgetTx) InsertBudget(_ context.Context, b Budget) error {
	b.Items = append([]BudgetItem(nil), b.Items...)
	t.repo.budgets[b.ID] = b
	return nil
}

func (t *memoryBudgetTx) GetBudget(ctx context.Context, id uuid.UUID) (Budget, error) {
	return t.repo.GetBudget(ctx, id)
}

func (t *memoryBudgetTx) SaveItems(_ context.Context, b Budget, status lifecycle.State) (bool, error) {
	current, ok := t.repo.budgets[b.ID]
	if !ok || current.Status != status {
		return false, nil
	}
	b.Status = current.Status
	b.Items = append([]BudgetItem(nil), b.Items...)
	t.repo.budgets[b.ID] = b
	return true, nil
}

func (t *memoryBudgetTx) CompareAndSetStatus(_ context.Context, id uuid.UUID, from, to lifecycle.State, at time.Time) (bool, error) {
	current, ok := t.repo.budgets[id]
	if !ok || current.Status != from {
		return false, nil
	}
	current.Status = to
	current.UpdatedAt = at
	t.repo.budgets[id] = current
	return true, nil
}

type memoryHistory struct {
	audits      []shared.AuditLog
	transitions []shared.TransitionLog
}

func (h *memoryHistory) RecordAudit(_ context.Context, log shared.AuditLog) error {
	h.audits = append(h.audits, log)
	return nil
}

func (h *memoryHistory) RecordTransition(_ context.Context, log shared.TransitionLog) error {
	h.transitions = append(h.transitions, log)
	return nil
}

func newTestService() (*Service, *memoryBudgetRepo, *memoryHistory) {
	repo := newMemoryBudgetRepo()
	history := &memoryHistory{}
	svc := NewService(repo, history)
	fixed := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return fixed })
	return svc, repo, history
}

func opsBudget() CreateInput {
	return CreateInput{
		Code:       "OPS-2025",
		Name:       "Operations",
		FiscalYear: 2025,
		ActorID:    9,
		Items: []ItemInput{
			{LineNumber: 1, Category: "rent", BudgetAmount: money.MustParse("12000.00")},
			{LineNumber: 2, Category: "", BudgetAmount: money.MustParse("3000.00")},
		},
	}
}

func TestCreateBudgetDerivesTotals(t *testing.T) {
	svc, repo, history := newTestService()
	b, err := svc.CreateBudget(context.Background(), opsBudget())
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateDraft, b.Status)
	assert.Equal(t, "15000.00", b.TotalBudget.String())
	assert.Equal(t, "0.00", b.TotalActual.String())
	assert.Equal(t, "-15000.00", b.TotalVariance.String())
	assert.Contains(t, repo.budgets, b.ID)
	require.Len(t, history.audits, 1)
}

func TestApproveRequiresAllItemsPresent(t *testing.T) {
	svc, _, history := newTestService()
	ctx := context.Background()
	b, err := svc.CreateBudget(ctx, opsBudget())
	require.NoError(t, err)

	_, err = svc.Transition(ctx, TransitionInput{BudgetID: b.ID, Action: lifecycle.ActionApprove, ExpectedStatus: lifecycle.StateDraft, ActorID: 9})
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)

	items := []ItemInput{
		{LineNumber: 1, Category: "rent", BudgetAmount: money.MustParse("12000.00")},
		{LineNumber: 2, Category: "utilities", BudgetAmount: money.MustParse("3000.00")},
	}
	_, err = svc.ReplaceItems(ctx, b.ID, 9, items)
	require.NoError(t, err)

	approved, err := svc.Transition(ctx, TransitionInput{BudgetID: b.ID, Action: lifecycle.ActionApprove, ExpectedStatus: lifecycle.StateDraft, ActorID: 9})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateApproved, approved.Status)
	require.Len(t, history.transitions, 1)
	assert.Equal(t, "BUDGET", history.transitions[0].Kind)

	_, err = svc.ReplaceItems(ctx, b.ID, 9, items)
	require.ErrorIs(t, err, ErrItemsLocked)
}

func TestRecordActualsRecomputesVariance(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	b, err := svc.CreateBudget(ctx, opsBudget())
	require.NoError(t, err)

	updated, err := svc.RecordActuals(ctx, b.ID, 9, []ActualInput{
		{LineNumber: 1, ActualAmount: money.MustParse("12600.00")},
	})
	require.NoError(t, err)
	assert.Equal(t, "600.00", updated.Items[0].VarianceAmount.String())
	pct, err := updated.Items[0].VariancePercentage.Value()
	require.NoError(t, err)
	assert.Equal(t, "5.00", pct.StringFixed(2))
	assert.Equal(t, "12600.00", updated.TotalActual.String())
	assert.Equal(t, "-2400.00", updated.TotalVariance.String())

	_, err = svc.RecordActuals(ctx, b.ID, 9, []ActualInput{{LineNumber: 7, ActualAmount: money.Zero()}})
	require.ErrorIs(t, err, shared.ErrInvalidLineShape)
}

func TestActualsLockedAfterCancel(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	b, err := svc.CreateBudget(ctx, opsBudget())
	require.NoError(t, err)

	_, err = svc.Transition(ctx, TransitionInput{BudgetID: b.ID, Action: lifecycle.ActionCancel, ExpectedStatus: lifecycle.StateDraft})
	require.NoError(t, err)
	_, err = svc.RecordActuals(ctx, b.ID, 9, []ActualInput{{LineNumber: 1, ActualAmount: money.Zero()}})
	require.ErrorIs(t, err, ErrActualsLocked)

	_, err = svc.Transition(ctx, TransitionInput{BudgetID: b.ID, Action: lifecycle.ActionApprove, ExpectedStatus: lifecycle.StateCancelled})
	require.ErrorIs(t, err, shared.ErrIllegalTransition)
}

func TestTransitionStaleExpectedStatus(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	b, err := svc.CreateBudget(ctx, opsBudget())
	require.NoError(t, err)

	_, err = svc.Transition(ctx, TransitionInput{BudgetID: b.ID, Action: lifecycle.ActionPost, ExpectedStatus: lifecycle.StateApproved})
	require.ErrorIs(t, err, shared.ErrStaleState)
	assert.Equal(t, lifecycle.StateDraft, repo.budgets[b.ID].Status)

	_, err = svc.GetBudget(ctx, uuid.New())
	require.ErrorIs(t, err, shared.ErrNotFound)
}
