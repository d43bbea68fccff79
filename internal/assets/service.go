package assets

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAsset(ctx context.Context, id uuid.UUID) (FixedAsset, error)
	ListDepreciable(ctx context.Context) ([]FixedAsset, error)
	ListRecords(ctx context.Context, assetID uuid.UUID) ([]DepreciationRecord, error)
}

// TxRepository exposes operations executed inside one transaction.
type TxRepository interface {
	InsertAsset(ctx context.Context, a FixedAsset) error
	GetAsset(ctx context.Context, id uuid.UUID) (FixedAsset, error)
	// UpdateDepreciation writes the new snapshot only if accumulated is still
	// previousAccumulated and the asset is not disposed.
	UpdateDepreciation(ctx context.Context, a FixedAsset, previousAccumulated money.Money) (bool, error)
	InsertRecord(ctx context.Context, r DepreciationRecord) error
	// MarkDisposed flips status to DISPOSED only from the given status.
	MarkDisposed(ctx context.Context, id uuid.UUID, from Status, at time.Time) (bool, error)
	InsertDisposal(ctx context.Context, d AssetDisposal) error
}

// Service coordinates asset registration, depreciation and disposal.
// Postings for one asset are serialized with a lock in addition to the
// conditional write.
type Service struct {
	repo    RepositoryPort
	locker  shared.Locker
	lockTTL time.Duration
	history shared.HistoryPort
	logger  *slog.Logger
	now     func() time.Time
	newID   func() uuid.UUID
}

// NewService constructs the asset service. A nil locker disables locking.
func NewService(repo RepositoryPort, locker shared.Locker, lockTTL time.Duration, history shared.HistoryPort, logger *slog.Logger) *Service {
	if locker == nil {
		locker = shared.NoopLocker{}
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		locker:  locker,
		lockTTL: lockTTL,
		history: history,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.New,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateAsset registers an ACTIVE asset.
func (s *Service) CreateAsset(ctx context.Context, input CreateInput) (FixedAsset, error) {
	asset, err := NewAsset(input)
	if err != nil {
		return FixedAsset{}, err
	}
	now := s.now()
	asset.ID = s.newID()
	asset.CreatedAt = now
	asset.UpdatedAt = now
	if asset.PurchaseDate.IsZero() {
		asset.PurchaseDate = now
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertAsset(ctx, asset)
	}); err != nil {
		return FixedAsset{}, err
	}
	s.audit(ctx, input.ActorID, "assets.asset.create", asset.ID, map[string]any{
		"code":   asset.Code,
		"method": string(asset.Method),
		"cost":   asset.PurchaseCost.String(),
	})
	return asset, nil
}

// GetAsset returns an asset snapshot.
func (s *Service) GetAsset(ctx context.Context, id uuid.UUID) (FixedAsset, error) {
	return s.repo.GetAsset(ctx, id)
}

// ListRecords returns the depreciation history of an asset.
func (s *Service) ListRecords(ctx context.Context, id uuid.UUID) ([]DepreciationRecord, error) {
	return s.repo.ListRecords(ctx, id)
}

// PostDepreciation books one month for an asset.
func (s *Service) PostDepreciation(ctx context.Context, input PostInput) (FixedAsset, DepreciationRecord, error) {
	var (
		asset  FixedAsset
		record DepreciationRecord
	)
	err := s.withAssetLock(ctx, input.AssetID, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetAsset(ctx, input.AssetID)
			if err != nil {
				return err
			}
			next, rec, err := PostDepreciation(current, input.PreviousAccumulated, input.PeriodDate)
			if err != nil {
				return err
			}
			now := s.now()
			next.UpdatedAt = now
			rec.ID = s.newID()
			rec.CreatedBy = input.ActorID
			rec.CreatedAt = now
			ok, err := tx.UpdateDepreciation(ctx, next, input.PreviousAccumulated)
			if err != nil {
				return err
			}
			if !ok {
				return &shared.StaleStateError{Entity: "fixed_asset", ID: current.ID.String(), Expected: "accumulated " + input.PreviousAccumulated.String()}
			}
			if err := tx.InsertRecord(ctx, rec); err != nil {
				return err
			}
			asset, record = next, rec
			return nil
		})
	})
	if err != nil {
		return FixedAsset{}, DepreciationRecord{}, err
	}
	s.audit(ctx, input.ActorID, "assets.depreciation.post", asset.ID, map[string]any{
		"period":      record.PeriodDate.Format("2006-01"),
		"amount":      record.Amount.String(),
		"accumulated": record.AccumulatedDepreciation.String(),
	})
	return asset, record, nil
}

// Dispose records the disposal of an asset. The asset becomes DISPOSED.
func (s *Service) Dispose(ctx context.Context, input DisposeInput) (FixedAsset, AssetDisposal, error) {
	if input.DisposalDate.IsZero() {
		input.DisposalDate = s.now()
	}
	var (
		asset    FixedAsset
		disposal AssetDisposal
	)
	err := s.withAssetLock(ctx, input.AssetID, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetAsset(ctx, input.AssetID)
			if err != nil {
				return err
			}
			next, d, err := Dispose(current, input.SalePrice, input.DisposalDate)
			if err != nil {
				return err
			}
			now := s.now()
			next.UpdatedAt = now
			d.ID = s.newID()
			d.CreatedBy = input.ActorID
			d.CreatedAt = now
			ok, err := tx.MarkDisposed(ctx, current.ID, current.Status, now)
			if err != nil {
				return err
			}
			if !ok {
				return &shared.StaleStateError{Entity: "fixed_asset", ID: current.ID.String(), Expected: string(current.Status)}
			}
			if err := tx.InsertDisposal(ctx, d); err != nil {
				return err
			}
			asset, disposal = next, d
			return nil
		})
	})
	if err != nil {
		return FixedAsset{}, AssetDisposal{}, err
	}
	s.audit(ctx, input.ActorID, "assets.asset.dispose", asset.ID, map[string]any{
		"sale_price": disposal.SalePrice.String(),
		"gain_loss":  disposal.GainLoss.String(),
	})
	return asset, disposal, nil
}

// Schedule projects future postings for an asset without storing them.
func (s *Service) Schedule(ctx context.Context, id uuid.UUID, months int) ([]DepreciationRecord, error) {
	asset, err := s.repo.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	from := asset.PurchaseDate
	if now := s.now(); from.Before(now) {
		from = now
	}
	return Schedule(asset, from, months)
}

// RunSummary counts outcomes of a monthly depreciation run.
type RunSummary struct {
	Period  time.Time
	Posted  int
	Skipped int
	Failed  int
	Total   money.Money
}

// RunMonthly posts period for every depreciable asset with at most
// concurrency postings in flight. Business rejections (fully depreciated,
// already posted, busy, unsupported method) are skipped; other errors are
// counted and the first one is returned after all assets were tried.
func (s *Service) RunMonthly(ctx context.Context, period time.Time, concurrency int) (RunSummary, error) {
	assets, err := s.repo.ListDepreciable(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	summary := RunSummary{Period: PeriodStart(period), Total: money.Zero()}
	var (
		mu       sync.Mutex
		firstErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, a := range assets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, rec, err := s.PostDepreciation(gctx, PostInput{
				AssetID:             a.ID,
				PeriodDate:          summary.Period,
				PreviousAccumulated: a.AccumulatedDepreciation,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				summary.Posted++
				summary.Total = summary.Total.Add(rec.Amount)
			case skippable(err):
				summary.Skipped++
				s.logger.Debug("depreciation skipped", slog.String("asset", a.ID.String()), slog.Any("reason", err))
			default:
				summary.Failed++
				if firstErr == nil {
					firstErr = err
				}
				s.logger.Error("depreciation failed", slog.String("asset", a.ID.String()), slog.Any("error", err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, firstErr
}

func skippable(err error) bool {
	switch shared.KindOf(err) {
	case shared.KindPreconditionFailed, shared.KindUnsupportedMethod, shared.KindAssetDisposed, shared.KindStaleState:
		return true
	}
	return errors.Is(err, shared.ErrLockHeld)
}

func (s *Service) withAssetLock(ctx context.Context, id uuid.UUID, fn func() error) error {
	release, err := s.locker.Acquire(ctx, shared.AssetLockKey(id), s.lockTTL)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release asset lock", slog.String("asset", id.String()), slog.Any("error", err))
		}
	}()
	return fn()
}

func (s *Service) audit(ctx context.Context, actorID int64, action string, id uuid.UUID, meta map[string]any) {
	if s.history == nil {
		return
	}
	_ = s.history.RecordAudit(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "fixed_asset",
		EntityID: id.String(),
		Meta:     meta,
		At:       s.now(),
	})
}
