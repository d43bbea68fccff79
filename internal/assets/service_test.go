package assets

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/shared"
)

type memoryAssetRepo struct {
	mu        sync.Mutex
	assets    map[uuid.UUID]FixedAsset
	records   []DepreciationRecord
	disposals []AssetDisposal
}

type memoryAssetTx struct {
	repo *memoryAssetRepo
}

func newMemoryAssetRepo() *memoryAssetRepo {
	return &memoryAssetRepo{assets: make(map[uuid.UUID]FixedAsset)}
}

func (r *memoryAssetRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memoryAssetTx{repo: r})
}

func (r *memoryAssetRepo) GetAsset(_ context.Context, id uuid.UUID) (FixedAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id)
}

func (r *memoryAssetRepo) get(id uuid.UUID) (FixedAsset, error) {
	a, ok := r.assets[id]
	if !ok {
		return FixedAsset{}, ErrAssetNotFound
	}
	return a, nil
}

func (r *memoryAssetRepo) ListDepreciable(context.Context) ([]FixedAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []FixedAsset
	for _, a := range r.assets {
		if a.Status != StatusDisposed && a.AccumulatedDepreciation.LessThan(DepreciableBase(a)) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryAssetRepo) ListRecords(_ context.Context, id uuid.UUID) ([]DepreciationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []DepreciationRecord
	for _, rec := range r.records {
		if rec.AssetID == id {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (t *memoryAssetTx) InsertAsset(_ context.Context, a FixedAsset) error {
	t.repo.assets[a.ID] = a
	return nil
}

func (t *memoryAssetTx) GetAsset(_ context.Context, id uuid.UUID) (FixedAsset, error) {
	return t.repo.get(id)
}

func (t *memoryAssetTx) UpdateDepreciation(_ context.Context, a FixedAsset, previous money.Money) (bool, error) {
	current, ok := t.repo.assets[a.ID]
	if !ok || current.Status == StatusDisposed || !current.AccumulatedDepreciation.Equal(previous) {
		return false, nil
	}
	t.repo.assets[a.ID] = a
	return true, nil
}

func (t *memoryAssetTx) InsertRecord(_ context.Context, rec DepreciationRecord) error {
	t.repo.records = append(t.repo.records, rec)
	return nil
}

func (t *memoryAssetTx) MarkDisposed(_ context.Context, id uuid.UUID, from Status, at time.Time) (bool, error) {
	current, ok := t.repo.assets[id]
	if !ok || current.Status != from {
		return false, nil
	}
	current.Status = StatusDisposed
	current.UpdatedAt = at
	t.repo.assets[id] = current
	return true, nil
}

func (t *memoryAssetTx) InsertDisposal(_ context.Context, d AssetDisposal) error {
	t.repo.disposals = append(t.repo.disposals, d)
	return nil
}

type memoryHistory struct {
	mu     sync.Mutex
	audits []shared.AuditLog
}

func (h *memoryHistory) RecordAudit(_ context.Context, log shared.AuditLog) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.audits = append(h.audits, log)
	return nil
}

func (h *memoryHistory) RecordTransition(context.Context, shared.TransitionLog) error {
	return nil
}

var testNow = time.Date(2025, 2, 14, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, locker shared.Locker) (*Service, *memoryAssetRepo, *memoryHistory) {
	t.Helper()
	repo := newMemoryAssetRepo()
	history := &memoryHistory{}
	svc := NewService(repo, locker, time.Second, history, nil)
	svc.WithNow(func() time.Time { return testNow })
	return svc, repo, history
}

func forklift() CreateInput {
	return CreateInput{
		Code:            "FA-001",
		Name:            "Forklift",
		PurchaseDate:    time.Date(2024, 12, 2, 0, 0, 0, 0, time.UTC),
		PurchaseCost:    money.MustParse("12000.00"),
		SalvageValue:    money.Zero(),
		UsefulLifeYears: 5,
		Method:          MethodStraightLine,
		ActorID:         3,
	}
}

func TestCreateAndPostDepreciation(t *testing.T) {
	svc, repo, history := newTestService(t, nil)
	ctx := context.Background()

	asset, err := svc.CreateAsset(ctx, forklift())
	require.NoError(t, err)
	assert.Equal(t, StatusActive, asset.Status)
	assert.Equal(t, "12000.00", asset.CurrentValue.String())

	updated, rec, err := svc.PostDepreciation(ctx, PostInput{
		AssetID:             asset.ID,
		PeriodDate:          time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		PreviousAccumulated: money.Zero(),
		ActorID:             3,
	})
	require.NoError(t, err)
	assert.Equal(t, "200.00", rec.Amount.String())
	assert.Equal(t, "11800.00", updated.CurrentValue.String())
	assert.Equal(t, month(2025, time.January), rec.PeriodDate)
	require.Len(t, repo.records, 1)
	require.Len(t, history.audits, 2)
	assert.Equal(t, "assets.depreciation.post", history.audits[1].Action)

	records, err := svc.ListRecords(ctx, asset.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestPostDepreciationStaleSnapshotLeavesNoRecord(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)
	ctx := context.Background()
	asset, err := svc.CreateAsset(ctx, forklift())
	require.NoError(t, err)

	_, _, err = svc.PostDepreciation(ctx, PostInput{AssetID: asset.ID, PeriodDate: month(2025, time.January), PreviousAccumulated: money.Zero()})
	require.NoError(t, err)
	_, _, err = svc.PostDepreciation(ctx, PostInput{AssetID: asset.ID, PeriodDate: month(2025, time.February), PreviousAccumulated: money.Zero()})
	require.ErrorIs(t, err, shared.ErrStaleState)
	assert.Len(t, repo.records, 1)
}

func TestDisposeThenDepreciateFails(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)
	ctx := context.Background()
	asset, err := svc.CreateAsset(ctx, forklift())
	require.NoError(t, err)

	disposed, d, err := svc.Dispose(ctx, DisposeInput{AssetID: asset.ID, SalePrice: money.MustParse("12500.00"), ActorID: 3})
	require.NoError(t, err)
	assert.Equal(t, StatusDisposed, disposed.Status)
	assert.Equal(t, "500.00", d.GainLoss.String())
	assert.Equal(t, testNow, d.DisposalDate)
	require.Len(t, repo.disposals, 1)

	_, _, err = svc.PostDepreciation(ctx, PostInput{AssetID: asset.ID, PeriodDate: month(2025, time.January), PreviousAccumulated: money.Zero()})
	require.ErrorIs(t, err, shared.ErrAssetDisposed)
	_, _, err = svc.Dispose(ctx, DisposeInput{AssetID: asset.ID, SalePrice: money.Zero()})
	require.ErrorIs(t, err, shared.ErrAssetDisposed)
}

func TestPostDepreciationRespectsHeldLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := shared.NewRedisLocker(client)

	svc, _, _ := newTestService(t, locker)
	ctx := context.Background()
	asset, err := svc.CreateAsset(ctx, forklift())
	require.NoError(t, err)

	release, err := locker.Acquire(ctx, shared.AssetLockKey(asset.ID), time.Minute)
	require.NoError(t, err)
	_, _, err = svc.PostDepreciation(ctx, PostInput{AssetID: asset.ID, PeriodDate: month(2025, time.January), PreviousAccumulated: money.Zero()})
	require.ErrorIs(t, err, shared.ErrLockHeld)

	require.NoError(t, release(ctx))
	_, _, err = svc.PostDepreciation(ctx, PostInput{AssetID: asset.ID, PeriodDate: month(2025, time.January), PreviousAccumulated: money.Zero()})
	require.NoError(t, err)
	assert.False(t, mr.Exists(shared.AssetLockKey(asset.ID)), "lock released after posting")
}

func TestConcurrentPostingsPostOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc, repo, _ := newTestService(t, shared.NewRedisLocker(client))
	ctx := context.Background()
	asset, err := svc.CreateAsset(ctx, forklift())
	require.NoError(t, err)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.PostDepreciation(ctx, PostInput{AssetID: asset.ID, PeriodDate: month(2025, time.January), PreviousAccumulated: money.Zero()})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
	assert.Len(t, repo.records, 1)
	stored, err := svc.GetAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, "200.00", stored.AccumulatedDepreciation.String())
}

func TestRunMonthlyPostsAndSkips(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)
	ctx := context.Background()

	first, err := svc.CreateAsset(ctx, forklift())
	require.NoError(t, err)
	second := forklift()
	second.Code = "FA-002"
	second.PurchaseCost = money.MustParse("6000.00")
	_, err = svc.CreateAsset(ctx, second)
	require.NoError(t, err)
	declining := forklift()
	declining.Code = "FA-003"
	declining.Method = MethodDecliningBalance
	_, err = svc.CreateAsset(ctx, declining)
	require.NoError(t, err)

	summary, err := svc.RunMonthly(ctx, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Posted)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, "300.00", summary.Total.String())
	assert.Len(t, repo.records, 2)

	again, err := svc.RunMonthly(ctx, month(2025, time.January), 2)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Posted)
	assert.Equal(t, 3, again.Skipped)

	stored, err := svc.GetAsset(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "200.00", stored.AccumulatedDepreciation.String())
}

func TestScheduleFromService(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()
	asset, err := svc.CreateAsset(ctx, forklift())
	require.NoError(t, err)

	records, err := svc.Schedule(ctx, asset.ID, 3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, month(2025, time.February), records[0].PeriodDate)
	assert.Equal(t, "11400.00", records[2].BookValue.String())

	_, err = svc.Schedule(ctx, uuid.New(), 3)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
