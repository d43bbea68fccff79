package assets

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/platform/db"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// Repository persists fixed assets in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("assets repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	return shared.StaleOnConflict(err, "fixed_asset")
}

const selectAsset = `SELECT id, code, name, purchase_date, purchase_cost, salvage_value, useful_life_years, method,
accumulated_depreciation, current_value, status, last_depreciated_period, created_by, created_at, updated_at
FROM fixed_assets`

func scanAsset(row pgx.Row) (FixedAsset, error) {
	var a FixedAsset
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.PurchaseDate, &a.PurchaseCost, &a.SalvageValue, &a.UsefulLifeYears, &a.Method,
		&a.AccumulatedDepreciation, &a.CurrentValue, &a.Status, &a.LastDepreciatedPeriod, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func getAsset(ctx context.Context, q db.Querier, id uuid.UUID) (FixedAsset, error) {
	a, err := scanAsset(q.QueryRow(ctx, selectAsset+` WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return FixedAsset{}, ErrAssetNotFound
	}
	return a, err
}

// GetAsset loads an asset outside a transaction.
func (r *Repository) GetAsset(ctx context.Context, id uuid.UUID) (FixedAsset, error) {
	return getAsset(ctx, r.pool, id)
}

// ListDepreciable returns assets that are not disposed and still have a
// depreciable remainder.
func (r *Repository) ListDepreciable(ctx context.Context) ([]FixedAsset, error) {
	rows, err := r.pool.Query(ctx, selectAsset+` WHERE status <> 'DISPOSED' AND accumulated_depreciation < purchase_cost - salvage_value ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FixedAsset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListRecords returns the postings of one asset in period order.
func (r *Repository) ListRecords(ctx context.Context, assetID uuid.UUID) ([]DepreciationRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, asset_id, period_date, amount, accumulated_depreciation, book_value, created_by, created_at
FROM depreciation_records WHERE asset_id=$1 ORDER BY period_date`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DepreciationRecord
	for rows.Next() {
		var rec DepreciationRecord
		if err := rows.Scan(&rec.ID, &rec.AssetID, &rec.PeriodDate, &rec.Amount, &rec.AccumulatedDepreciation, &rec.BookValue, &rec.CreatedBy, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *txRepository) GetAsset(ctx context.Context, id uuid.UUID) (FixedAsset, error) {
	return getAsset(ctx, r.tx, id)
}

func (r *txRepository) InsertAsset(ctx context.Context, a FixedAsset) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO fixed_assets (id, code, name, purchase_date, purchase_cost, salvage_value, useful_life_years, method,
accumulated_depreciation, current_value, status, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		a.ID, a.Code, a.Name, a.PurchaseDate, a.PurchaseCost, a.SalvageValue, a.UsefulLifeYears, string(a.Method),
		a.AccumulatedDepreciation, a.CurrentValue, string(a.Status), a.CreatedBy, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *txRepository) UpdateDepreciation(ctx context.Context, a FixedAsset, previousAccumulated money.Money) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE fixed_assets SET accumulated_depreciation=$2, current_value=$3, last_depreciated_period=$4, updated_at=$5
WHERE id=$1 AND accumulated_depreciation=$6 AND status <> 'DISPOSED'`,
		a.ID, a.AccumulatedDepreciation, a.CurrentValue, a.LastDepreciatedPeriod, a.UpdatedAt, previousAccumulated)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) InsertRecord(ctx context.Context, rec DepreciationRecord) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO depreciation_records (id, asset_id, period_date, amount, accumulated_depreciation, book_value, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, rec.ID, rec.AssetID, rec.PeriodDate, rec.Amount, rec.AccumulatedDepreciation, rec.BookValue, rec.CreatedBy, rec.CreatedAt)
	return err
}

func (r *txRepository) MarkDisposed(ctx context.Context, id uuid.UUID, from Status, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE fixed_assets SET status='DISPOSED', updated_at=$3 WHERE id=$1 AND status=$2`, id, string(from), at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) InsertDisposal(ctx context.Context, d AssetDisposal) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO asset_disposals (id, asset_id, disposal_date, sale_price, book_value, gain_loss, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, d.ID, d.AssetID, d.DisposalDate, d.SalePrice, d.BookValue, d.GainLoss, d.CreatedBy, d.CreatedAt)
	return err
}
