package payroll

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/shared"
)

type periodKey struct {
	employee string
	period   Period
}

type memoryPayrollRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]Record
	byKey   map[periodKey]uuid.UUID
	upserts int
}

type memoryPayrollTx struct {
	repo *memoryPayrollRepo
}

func newMemoryPayrollRepo() *memoryPayrollRepo {
	return &memoryPayrollRepo{records: make(map[uuid.UUID]Record), byKey: make(map[periodKey]uuid.UUID)}
}

func (r *memoryPayrollRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memoryPayrollTx{repo: r})
}

func (r *memoryPayrollRepo) GetRecord(_ context.Context, id uuid.UUID) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id)
}

func (r *memoryPayrollRepo) get(id uuid.UUID) (Record, error) {
	rec, ok := r.records[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (r *memoryPayrollRepo) ListPeriod(_ context.Context, period Period) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, rec := range r.records {
		if rec.Period == period {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeRef < out[j].EmployeeRef })
	return out, nil
}

func (t *memoryPayrollTx) FindForPeriod(_ context.Context, employeeRef string, period Period) (*Record, error) {
	id, ok := t.repo.byKey[periodKey{employee: employeeRef, period: period}]
	if !ok {
		return nil, nil
	}
	rec := t.repo.records[id]
	return &rec, nil
}

func (t *memoryPayrollTx) Upsert(_ context.Context, rec Record) (bool, error) {
	key := periodKey{employee: rec.EmployeeRef, period: rec.Period}
	if id, ok := t.repo.byKey[key]; ok {
		current := t.repo.records[id]
		if current.Status != lifecycle.StateDraft {
			return false, nil
		}
		rec.ID = current.ID
		rec.Status = current.Status
		rec.CreatedBy = current.CreatedBy
		rec.CreatedAt = current.CreatedAt
	}
	t.repo.byKey[key] = rec.ID
	t.repo.records[rec.ID] = rec
	t.repo.upserts++
	return true, nil
}

func (t *memoryPayrollTx) GetRecord(_ context.Context, id uuid.UUID) (Record, error) {
	return t.repo.get(id)
}

func (t *memoryPayrollTx) CompareAndSetStatus(_ context.Context, id uuid.UUID, from, to lifecycle.State, at time.Time) (bool, error) {
	current, ok := t.repo.records[id]
	if !ok || current.Status != from {
		return false, nil
	}
	current.Status = to
	current.UpdatedAt = at
	t.repo.records[id] = current
	return true, nil
}

type memoryHistory struct {
	mu          sync.Mutex
	audits      []shared.AuditLog
	transitions []shared.TransitionLog
}

func (h *memoryHistory) RecordAudit(_ context.Context, log shared.AuditLog) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.audits = append(h.audits, log)
	return nil
}

func (h *memoryHistory) RecordTransition(_ context.Context, log shared.TransitionLog) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transitions = append(h.transitions, log)
	return nil
}

var testNow = time.Date(2025, 3, 28, 17, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, locker shared.Locker) (*Service, *memoryPayrollRepo, *memoryHistory) {
	t.Helper()
	repo := newMemoryPayrollRepo()
	history := &memoryHistory{}
	svc := NewService(repo, locker, time.Minute, history, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.WithNow(func() time.Time { return testNow })
	return svc, repo, history
}

func marchRun(employees ...EmployeeInput) GenerateInput {
	return GenerateInput{Period: Period{Month: 3, Year: 2025}, Employees: employees, ActorID: 4}
}

func employee(ref, basic string) EmployeeInput {
	return EmployeeInput{
		EmployeeRef: ref,
		BasicSalary: money.MustParse(basic),
		Allowances:  []Component{{Code: "MEAL", Amount: money.MustParse("500000.00")}},
		Deductions:  []Component{{Code: "TAX", Amount: money.MustParse("250000.00")}},
	}
}

func TestGenerateTwiceKeepsOneRecord(t *testing.T) {
	svc, repo, history := newTestService(t, nil)
	ctx := context.Background()

	first, err := svc.Generate(ctx, marchRun(employee("E", "6000000.00")))
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.NoError(t, first[0].Err)
	assert.Equal(t, OutcomeNew, first[0].Outcome)
	assert.Equal(t, "6250000.00", first[0].Record.NetSalary.String())

	second, err := svc.Generate(ctx, marchRun(employee("E", "6000000.00")))
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, OutcomeUnchanged, second[0].Outcome)
	assert.Equal(t, first[0].Record.ID, second[0].Record.ID)

	assert.Len(t, repo.records, 1)
	assert.Equal(t, 1, repo.upserts)
	assert.Len(t, history.audits, 1)
}

func TestGenerateUpdatesDraftAndRejectsApproved(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)
	ctx := context.Background()

	first, err := svc.Generate(ctx, marchRun(employee("E", "6000000.00")))
	require.NoError(t, err)
	id := first[0].Record.ID

	updated, err := svc.Generate(ctx, marchRun(employee("E", "6500000.00")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, updated[0].Outcome)
	assert.Equal(t, id, updated[0].Record.ID)
	assert.Equal(t, "6750000.00", repo.records[id].NetSalary.String())

	_, err = svc.Transition(ctx, TransitionInput{RecordID: id, Action: lifecycle.ActionApprove, ExpectedStatus: lifecycle.StateDraft, ActorID: 4})
	require.NoError(t, err)

	again, err := svc.Generate(ctx, marchRun(employee("E", "6500000.00")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, again[0].Outcome)

	changed, err := svc.Generate(ctx, marchRun(employee("E", "7000000.00")))
	require.NoError(t, err)
	require.ErrorIs(t, changed[0].Err, shared.ErrPreconditionFailed)
	assert.Equal(t, "6750000.00", repo.records[id].NetSalary.String())
}

func TestGenerateMatchesPaddedEmployeeRef(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)
	ctx := context.Background()

	first, err := svc.Generate(ctx, marchRun(employee("E", "6000000.00")))
	require.NoError(t, err)
	id := first[0].Record.ID

	padded, err := svc.Generate(ctx, marchRun(employee(" E ", "6000000.00")))
	require.NoError(t, err)
	require.NoError(t, padded[0].Err)
	assert.Equal(t, OutcomeUnchanged, padded[0].Outcome)
	assert.Equal(t, id, padded[0].Record.ID)
	assert.Equal(t, 1, repo.upserts)

	_, err = svc.Transition(ctx, TransitionInput{RecordID: id, Action: lifecycle.ActionApprove, ExpectedStatus: lifecycle.StateDraft, ActorID: 4})
	require.NoError(t, err)

	again, err := svc.Generate(ctx, marchRun(employee("  E", "6000000.00")))
	require.NoError(t, err)
	require.NoError(t, again[0].Err)
	assert.Equal(t, OutcomeUnchanged, again[0].Outcome)
	assert.Equal(t, "E", again[0].Record.EmployeeRef)
	assert.Len(t, repo.records, 1)
}

func TestGenerateReportsPerEmployeeFailures(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)
	broke := employee("F", "100000.00")
	broke.Deductions = []Component{{Code: "LOAN", Amount: money.MustParse("900000.00")}}
	results, err := svc.Generate(context.Background(), marchRun(employee("E", "6000000.00"), broke))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, OutcomeNew, results[0].Outcome)
	require.ErrorIs(t, results[1].Err, shared.ErrInvalidAmount)
	assert.Equal(t, "F", results[1].Record.EmployeeRef)
	assert.Len(t, repo.records, 1)
}

func TestGenerateValidatesRequest(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Generate(ctx, marchRun())
	require.ErrorIs(t, err, ErrNoEmployees)

	in := marchRun(employee("E", "1.00"))
	in.Period.Month = 13
	_, err = svc.Generate(ctx, in)
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestGenerateRespectsPeriodLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := shared.NewRedisLocker(client)

	svc, repo, _ := newTestService(t, locker)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, shared.PayrollLockKey(3, 2025), time.Minute)
	require.NoError(t, err)
	_, err = svc.Generate(ctx, marchRun(employee("E", "6000000.00")))
	require.ErrorIs(t, err, shared.ErrLockHeld)
	assert.Empty(t, repo.records)

	require.NoError(t, release(ctx))
	_, err = svc.Generate(ctx, marchRun(employee("E", "6000000.00")))
	require.NoError(t, err)
	assert.False(t, mr.Exists(shared.PayrollLockKey(3, 2025)))
}

func TestConcurrentGenerateStoresOneRecord(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc, repo, _ := newTestService(t, shared.NewRedisLocker(client))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Generate(ctx, marchRun(employee("E", "6000000.00")))
		}()
	}
	wg.Wait()
	assert.Len(t, repo.records, 1)
	assert.Equal(t, 1, repo.upserts)
}

func TestPayrollTransitionLifecycle(t *testing.T) {
	svc, repo, history := newTestService(t, nil)
	ctx := context.Background()
	results, err := svc.Generate(ctx, marchRun(employee("E", "6000000.00")))
	require.NoError(t, err)
	id := results[0].Record.ID

	_, err = svc.Transition(ctx, TransitionInput{RecordID: id, Action: lifecycle.ActionPay, ExpectedStatus: lifecycle.StateDraft})
	require.ErrorIs(t, err, shared.ErrIllegalTransition)

	_, err = svc.Transition(ctx, TransitionInput{RecordID: id, Action: lifecycle.ActionApprove, ExpectedStatus: lifecycle.StateDraft, ActorID: 4})
	require.NoError(t, err)

	tampered := repo.records[id]
	tampered.NetSalary = money.MustParse("1.00")
	repo.records[id] = tampered
	_, err = svc.Transition(ctx, TransitionInput{RecordID: id, Action: lifecycle.ActionPay, ExpectedStatus: lifecycle.StateApproved, ActorID: 4})
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)

	tampered.NetSalary = money.MustParse("6250000.00")
	repo.records[id] = tampered
	paid, err := svc.Transition(ctx, TransitionInput{RecordID: id, Action: lifecycle.ActionPay, ExpectedStatus: lifecycle.StateApproved, ActorID: 4})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatePaid, paid.Status)
	require.Len(t, history.transitions, 2)
	assert.Equal(t, "PAID", history.transitions[1].To)

	_, err = svc.Transition(ctx, TransitionInput{RecordID: id, Action: lifecycle.ActionCancel, ExpectedStatus: lifecycle.StatePaid})
	require.ErrorIs(t, err, shared.ErrIllegalTransition)

	_, err = svc.GetRecord(ctx, uuid.New())
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListPeriod(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.Generate(ctx, marchRun(employee("B", "6000000.00"), employee("A", "5000000.00")))
	require.NoError(t, err)

	records, err := svc.ListPeriod(ctx, Period{Month: 3, Year: 2025})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "A", records[0].EmployeeRef)

	records, err = svc.ListPeriod(ctx, Period{Month: 4, Year: 2025})
	require.NoError(t, err)
	assert.Empty(t, records)
}
