package budget

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/platform/db"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// Repository persists budgets in PostgreSQL.
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
		return errors.New("budget repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	return shared.StaleOnConflict(err, "budget")
}

// GetBudget loads a budget outside of a transaction.
func (r *Repository) GetBudget(ctx context.Context, id uuid.UUID) (Budget, error) {
	return getBudget(ctx, r.pool, id)
}

func (r *txRepository) GetBudget(ctx context.Context, id uuid.UUID) (Budget, error) {
	return getBudget(ctx, r.tx, id)
}

func getBudget(ctx context.Context, q db.Querier, id uuid.UUID) (Budget, error) {
	var (
		b         Budget
		threshold *money.Money
		percent   *money.Rate
	)
	err := q.QueryRow(ctx, `SELECT id, code, name, fiscal_year, status, threshold_amount, threshold_percent,
total_budget, total_actual, total_variance, created_by, created_at, updated_at
FROM budgets WHERE id=$1`, id).Scan(&b.ID, &b.Code, &b.Name, &b.FiscalYear, &b.Status, &threshold, &percent,
		&b.TotalBudget, &b.TotalActual, &b.TotalVariance, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Budget{}, ErrBudgetNotFound
		}
		return Budget{}, err
	}
	b.Threshold = Threshold{Amount: threshold, Percent: percent}
	rows, err := q.Query(ctx, `SELECT line_number, category, description, budget_amount, actual_amount,
variance_amount, variance_percentage, flagged
FROM budget_items WHERE budget_id=$1 ORDER BY line_number`, id)
	if err != nil {
		return Budget{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it  BudgetItem
			pct decimal.NullDecimal
		)
		if err := rows.Scan(&it.LineNumber, &it.Category, &it.Description, &it.BudgetAmount, &it.ActualAmount,
			&it.VarianceAmount, &pct, &it.Flagged); err != nil {
			return Budget{}, err
		}
		if pct.Valid {
			it.VariancePercentage = DefinedRatio(pct.Decimal)
		}
		b.Items = append(b.Items, it)
	}
	return b, rows.Err()
}

func (r *txRepository) InsertBudget(ctx context.Context, b Budget) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO budgets (id, code, name, fiscal_year, status, threshold_amount, threshold_percent,
total_budget, total_actual, total_variance, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		b.ID, b.Code, b.Name, b.FiscalYear, string(b.Status), b.Threshold.Amount, b.Threshold.Percent,
		b.TotalBudget, b.TotalActual, b.TotalVariance, b.CreatedBy, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return err
	}
	return r.insertItems(ctx, b.ID, b.Items)
}

func (r *txRepository) insertItems(ctx context.Context, budgetID uuid.UUID, items []BudgetItem) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO budget_items (budget_id, line_number, category, description, budget_amount, actual_amount,
variance_amount, variance_percentage, flagged) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			budgetID, it.LineNumber, it.Category, it.Description, it.BudgetAmount, it.ActualAmount,
			it.VarianceAmount, it.VariancePercentage.DBValue(), it.Flagged)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) SaveItems(ctx context.Context, b Budget, status lifecycle.State) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE budgets SET total_budget=$3, total_actual=$4, total_variance=$5, updated_at=$6
WHERE id=$1 AND status=$2`, b.ID, string(status), b.TotalBudget, b.TotalActual, b.TotalVariance, b.UpdatedAt)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM budget_items WHERE budget_id=$1`, b.ID); err != nil {
		return false, err
	}
	return true, r.insertItems(ctx, b.ID, b.Items)
}

func (r *txRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to lifecycle.State, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE budgets SET status=$3, updated_at=$4 WHERE id=$1 AND status=$2`, id, string(from), string(to), at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
