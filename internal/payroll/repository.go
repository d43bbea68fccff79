package payroll

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

// Repository persists payroll records in PostgreSQL.
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
		return errors.New("payroll repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	return shared.StaleOnConflict(err, "payroll_record")
}

const selectRecord = `SELECT id, employee_ref, period_month, period_year, basic_salary, allowances, deductions,
total_allowances, total_deductions, net_salary, status, fingerprint, created_by, created_at, updated_at
FROM payroll_records`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.EmployeeRef, &rec.Period.Month, &rec.Period.Year, &rec.BasicSalary, &rec.Allowances, &rec.Deductions,
		&rec.TotalAllowances, &rec.TotalDeductions, &rec.NetSalary, &rec.Status, &rec.Fingerprint, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

func getRecord(ctx context.Context, q db.Querier, id uuid.UUID) (Record, error) {
	rec, err := scanRecord(q.QueryRow(ctx, selectRecord+` WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return rec, err
}

// GetRecord loads a record outside of a transaction.
func (r *Repository) GetRecord(ctx context.Context, id uuid.UUID) (Record, error) {
	return getRecord(ctx, r.pool, id)
}

// ListPeriod returns the records of one period ordered by employee.
func (r *Repository) ListPeriod(ctx context.Context, period Period) ([]Record, error) {
	rows, err := r.pool.Query(ctx, selectRecord+` WHERE period_month=$1 AND period_year=$2 ORDER BY employee_ref`, period.Month, period.Year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *txRepository) GetRecord(ctx context.Context, id uuid.UUID) (Record, error) {
	return getRecord(ctx, r.tx, id)
}

func (r *txRepository) FindForPeriod(ctx context.Context, employeeRef string, period Period) (*Record, error) {
	rec, err := scanRecord(r.tx.QueryRow(ctx, selectRecord+` WHERE employee_ref=$1 AND period_month=$2 AND period_year=$3 FOR UPDATE`,
		employeeRef, period.Month, period.Year))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *txRepository) Upsert(ctx context.Context, rec Record) (bool, error) {
	tag, err := r.tx.Exec(ctx, `INSERT INTO payroll_records (id, employee_ref, period_month, period_year, basic_salary, allowances, deductions,
total_allowances, total_deductions, net_salary, status, fingerprint, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (employee_ref, period_month, period_year) DO UPDATE SET
	basic_salary=EXCLUDED.basic_salary,
	allowances=EXCLUDED.allowances,
	deductions=EXCLUDED.deductions,
	total_allowances=EXCLUDED.total_allowances,
	total_deductions=EXCLUDED.total_deductions,
	net_salary=EXCLUDED.net_salary,
	fingerprint=EXCLUDED.fingerprint,
	updated_at=EXCLUDED.updated_at
WHERE payroll_records.status='DRAFT'`,
		rec.ID, rec.EmployeeRef, rec.Period.Month, rec.Period.Year, rec.BasicSalary, rec.Allowances, rec.Deductions,
		rec.TotalAllowances, rec.TotalDeductions, rec.NetSalary, string(rec.Status), rec.Fingerprint, rec.CreatedBy, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to lifecycle.State, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE payroll_records SET status=$3, updated_at=$4 WHERE id=$1 AND status=$2`, id, string(from), string(to), at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
