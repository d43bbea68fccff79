package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/platform/db"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// Repository persists invoices in PostgreSQL.
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
		return errors.New("invoicing repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	return shared.StaleOnConflict(err, "invoice")
}

// GetInvoice loads an invoice with lines.
func (r *Repository) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return getInvoice(ctx, r.pool, id)
}

// ListOpenInvoices returns invoices with a remaining balance. Lines are not
// loaded.
func (r *Repository) ListOpenInvoices(ctx context.Context) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, selectInvoice+` WHERE remaining_amount > 0 AND status <> 'CANCELLED' ORDER BY due_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

const selectInvoice = `SELECT id, number, customer_ref, payment_method, issue_date, due_date, status,
subtotal, tax_amount, discount, total_amount, paid_amount, remaining_amount, payment_status,
created_by, created_at, updated_at FROM invoices`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerRef, &inv.PaymentMethod, &inv.IssueDate, &inv.DueDate, &inv.Status,
		&inv.Subtotal, &inv.TaxAmount, &inv.Discount, &inv.TotalAmount, &inv.PaidAmount, &inv.RemainingAmount, &inv.PaymentStatus,
		&inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

func getInvoice(ctx context.Context, q db.Querier, id uuid.UUID) (Invoice, error) {
	inv, err := scanInvoice(q.QueryRow(ctx, selectInvoice+` WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	rows, err := q.Query(ctx, `SELECT line_number, product_ref, description, quantity, unit_price, tax_rate, discount, subtotal, tax_amount, total
FROM invoice_lines WHERE invoice_id=$1 ORDER BY line_number`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.LineNumber, &l.ProductRef, &l.Description, &l.Quantity, &l.UnitPrice, &l.TaxRate, &l.Discount, &l.Subtotal, &l.TaxAmount, &l.Total); err != nil {
			return Invoice{}, err
		}
		inv.Lines = append(inv.Lines, l)
	}
	return inv, rows.Err()
}

func (r *txRepository) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return getInvoice(ctx, r.tx, id)
}

func (r *txRepository) NextNumber(ctx context.Context, year int) (string, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoice_sequences (year, last_value) VALUES ($1, 1)
ON CONFLICT (year) DO UPDATE SET last_value = invoice_sequences.last_value + 1
RETURNING last_value`, year).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%d-%06d", year, seq), nil
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv Invoice) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO invoices (id, number, customer_ref, payment_method, issue_date, due_date, status,
subtotal, tax_amount, discount, total_amount, paid_amount, remaining_amount, payment_status, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		inv.ID, inv.Number, inv.CustomerRef, inv.PaymentMethod, inv.IssueDate, inv.DueDate, string(inv.Status),
		inv.Subtotal, inv.TaxAmount, inv.Discount, inv.TotalAmount, inv.PaidAmount, inv.RemainingAmount, string(inv.PaymentStatus),
		inv.CreatedBy, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, l := range inv.Lines {
		batch.Queue(`INSERT INTO invoice_lines (invoice_id, line_number, product_ref, description, quantity, unit_price, tax_rate, discount, subtotal, tax_amount, total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`, inv.ID, l.LineNumber, l.ProductRef, l.Description, l.Quantity, l.UnitPrice, l.TaxRate, l.Discount, l.Subtotal, l.TaxAmount, l.Total)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) UpdatePaid(ctx context.Context, inv Invoice, previousPaid money.Money) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET paid_amount=$2, remaining_amount=$3, payment_status=$4, updated_at=$5
WHERE id=$1 AND paid_amount=$6`, inv.ID, inv.PaidAmount, inv.RemainingAmount, string(inv.PaymentStatus), inv.UpdatedAt, previousPaid)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO invoice_payments (id, invoice_id, amount, method, paid_at, note, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, p.ID, p.InvoiceID, p.Amount, p.Method, p.PaidAt, p.Note, p.CreatedBy)
	return err
}

func (r *txRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to lifecycle.State, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET status=$3, updated_at=$4 WHERE id=$1 AND status=$2`, id, string(from), string(to), at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// StockRepository reads available quantities maintained by inventory.
type StockRepository struct {
	pool *pgxpool.Pool
}

// NewStockRepository constructs StockRepository.
func NewStockRepository(pool *pgxpool.Pool) *StockRepository {
	return &StockRepository{pool: pool}
}

// Available returns the quantity on hand per product. Unknown products are
// omitted and count as zero.
func (r *StockRepository) Available(ctx context.Context, productRefs []string) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_ref, available FROM stock_levels WHERE product_ref = ANY($1)`, productRefs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64, len(productRefs))
	for rows.Next() {
		var (
			ref string
			qty int64
		)
		if err := rows.Scan(&ref, &qty); err != nil {
			return nil, err
		}
		out[ref] = qty
	}
	return out, rows.Err()
}
