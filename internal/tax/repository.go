package tax

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/platform/db"
	"github.com/odyssey-erp/fincore/internal/shared"
)

const periodConstraint = "tax_returns_period_key"

// Repository persists tax returns in PostgreSQL.
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
		return errors.New("tax repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	return shared.StaleOnConflict(err, "tax_return")
}

// GetReturn loads a return outside of a transaction.
func (r *Repository) GetReturn(ctx context.Context, id uuid.UUID) (Return, error) {
	return getReturn(ctx, r.pool, id)
}

func (r *txRepository) GetReturn(ctx context.Context, id uuid.UUID) (Return, error) {
	return getReturn(ctx, r.tx, id)
}

func getReturn(ctx context.Context, q db.Querier, id uuid.UUID) (Return, error) {
	var ret Return
	err := q.QueryRow(ctx, `SELECT id, period_month, period_year, status, output_tax, input_tax, net_tax, position,
created_by, created_at, updated_at FROM tax_returns WHERE id=$1`, id).Scan(&ret.ID, &ret.Period.Month, &ret.Period.Year,
		&ret.Status, &ret.Result.OutputTax, &ret.Result.InputTax, &ret.Result.NetTax, &ret.Result.Position,
		&ret.CreatedBy, &ret.CreatedAt, &ret.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Return{}, ErrReturnNotFound
		}
		return Return{}, err
	}
	rows, err := q.Query(ctx, `SELECT line_number, direction, reference, transaction_date, base_amount, rate, tax_amount, total_amount
FROM tax_transactions WHERE return_id=$1 ORDER BY line_number`, id)
	if err != nil {
		return Return{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.LineNumber, &t.Direction, &t.Reference, &t.TransactionDate, &t.BaseAmount, &t.Rate, &t.TaxAmount, &t.TotalAmount); err != nil {
			return Return{}, err
		}
		ret.Transactions = append(ret.Transactions, t)
	}
	return ret, rows.Err()
}

func (r *txRepository) InsertReturn(ctx context.Context, ret Return) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO tax_returns (id, period_month, period_year, status, output_tax, input_tax, net_tax, position,
created_by, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		ret.ID, ret.Period.Month, ret.Period.Year, string(ret.Status), ret.Result.OutputTax, ret.Result.InputTax,
		ret.Result.NetTax, string(ret.Result.Position), ret.CreatedBy, ret.CreatedAt, ret.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, periodConstraint) {
			return ErrReturnExists
		}
		return err
	}
	return r.insertTransactions(ctx, ret.ID, ret.Transactions)
}

func (r *txRepository) insertTransactions(ctx context.Context, returnID uuid.UUID, txs []Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range txs {
		batch.Queue(`INSERT INTO tax_transactions (return_id, line_number, direction, reference, transaction_date, base_amount, rate, tax_amount, total_amount)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, returnID, t.LineNumber, string(t.Direction), t.Reference, t.TransactionDate, t.BaseAmount, t.Rate, t.TaxAmount, t.TotalAmount)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) SaveTransactions(ctx context.Context, ret Return, status lifecycle.State) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE tax_returns SET output_tax=$3, input_tax=$4, net_tax=$5, position=$6, updated_at=$7
WHERE id=$1 AND status=$2`, ret.ID, string(status), ret.Result.OutputTax, ret.Result.InputTax, ret.Result.NetTax,
		string(ret.Result.Position), ret.UpdatedAt)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM tax_transactions WHERE return_id=$1`, ret.ID); err != nil {
		return false, err
	}
	return true, r.insertTransactions(ctx, ret.ID, ret.Transactions)
}

func (r *txRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to lifecycle.State, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE tax_returns SET status=$3, updated_at=$4 WHERE id=$1 AND status=$2`, id, string(from), string(to), at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
