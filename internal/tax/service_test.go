package tax

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/shared"
)

type memoryTaxRepo struct {
	returns map[uuid.UUID]Return
}

type memoryTaxTx struct {
	repo *memoryTaxRepo
}

func newMemoryTaxRepo() *memoryTaxRepo {
	return &memoryTaxRepo{returns: make(map[uuid.UUID]Return)}
}

func (r *memoryTaxRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTaxTx{repo: r})
}

func (r *memoryTaxRepo) GetReturn(_ context.Context, id uuid.UUID) (Return, error) {
	ret, ok := r.returns[id]
	if !ok {
		return Return{}, ErrReturnNotFound
	}
	ret.Transactions = append([]Transaction(nil), ret.Transactions...)
	return ret, nil
}

func (t *memoryTaxTx) InsertReturn(_ context.Context, ret Return) error {
	for _, existing := range t.repo.returns {
		if existing.Period == ret.Period {
			return ErrReturnExists
		}
	}
	t.repo.returns[ret.ID] = ret
	return nil
}

func (t *memoryTaxTx) GetReturn(ctx context.Context, id uuid.UUID) (Return, error) {
	return t.repo.GetReturn(ctx, id)
}

func (t *memoryTaxTx) SaveTransactions(_ context.Context, ret Return, status lifecycle.State) (bool, error) {
	current, ok := t.repo.returns[ret.ID]
	if !ok || current.Status != status {
		return false, nil
	}
	t.repo.returns[ret.ID] = ret
	return true, nil
}

func (t *memoryTaxTx) CompareAndSetStatus(_ context.Context, id uuid.UUID, from, to lifecycle.State, at time.Time) (bool, error) {
	current, ok := t.repo.returns[id]
	if !ok || current.Status != from {
		return false, nil
	}
	current.Status = to
	current.UpdatedAt = at
	t.repo.returns[id] = current
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

var testNow = time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)

func newTestService() (*Service, *memoryTaxRepo, *memoryHistory) {
	repo := newMemoryTaxRepo()
	history := &memoryHistory{}
	svc := NewService(repo, history)
	svc.WithNow(func() time.Time { return testNow })
	return svc, repo, history
}

func TestCreateReturnNetsTransactions(t *testing.T) {
	svc, _, history := newTestService()
	ret, err := svc.CreateReturn(context.Background(), CreateInput{
		Period: Period{Month: 3, Year: 2025},
		Transactions: []TransactionInput{
			txn(1, DirectionOutput, "2000.00", "11"),
			txn(2, DirectionInput, "500.00", "11"),
		},
		ActorID: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateDraft, ret.Status)
	assert.Equal(t, "165.00", ret.Result.NetTax.String())
	assert.Equal(t, PositionPayable, ret.Result.Position)
	assert.Equal(t, testNow, ret.Transactions[0].TransactionDate)
	assert.Equal(t, "2025-03", ret.Period.String())
	require.Len(t, history.audits, 1)
}

func TestCreateReturnOncePerPeriod(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	input := CreateInput{Period: Period{Month: 3, Year: 2025}, ActorID: 2}
	_, err := svc.CreateReturn(ctx, input)
	require.NoError(t, err)
	_, err = svc.CreateReturn(ctx, input)
	require.ErrorIs(t, err, ErrReturnExists)

	_, err = svc.CreateReturn(ctx, CreateInput{Period: Period{Month: 13, Year: 2025}})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestReturnLifecycle(t *testing.T) {
	svc, _, history := newTestService()
	ctx := context.Background()
	ret, err := svc.CreateReturn(ctx, CreateInput{Period: Period{Month: 1, Year: 2025}, ActorID: 2})
	require.NoError(t, err)

	_, err = svc.Transition(ctx, TransitionInput{ReturnID: ret.ID, Action: lifecycle.ActionApprove, ExpectedStatus: lifecycle.StateDraft})
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)

	updated, err := svc.ReplaceTransactions(ctx, ret.ID, 2, []TransactionInput{txn(1, DirectionInput, "1000.00", "11")})
	require.NoError(t, err)
	assert.Equal(t, PositionRefundable, updated.Result.Position)

	_, err = svc.Transition(ctx, TransitionInput{ReturnID: ret.ID, Action: lifecycle.ActionApprove, ExpectedStatus: lifecycle.StateDraft, ActorID: 2})
	require.NoError(t, err)
	posted, err := svc.Transition(ctx, TransitionInput{ReturnID: ret.ID, Action: lifecycle.ActionPost, ExpectedStatus: lifecycle.StateApproved, ActorID: 2})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatePosted, posted.Status)
	assert.Len(t, history.transitions, 2)

	_, err = svc.ReplaceTransactions(ctx, ret.ID, 2, nil)
	require.ErrorIs(t, err, ErrReturnLocked)
	_, err = svc.Transition(ctx, TransitionInput{ReturnID: ret.ID, Action: lifecycle.ActionCancel, ExpectedStatus: lifecycle.StatePosted})
	require.ErrorIs(t, err, shared.ErrIllegalTransition)
}
