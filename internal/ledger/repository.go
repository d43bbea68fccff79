package ledger

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

// Repository persists journal entries in PostgreSQL.
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
		return errors.New("ledger repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	return shared.StaleOnConflict(err, "journal_entry")
}

// GetEntry loads an entry outside of a transaction.
func (r *Repository) GetEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	return getEntry(ctx, r.pool, id)
}

func (r *txRepository) GetEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	return getEntry(ctx, r.tx, id)
}

func getEntry(ctx context.Context, q db.Querier, id uuid.UUID) (JournalEntry, error) {
	var e JournalEntry
	err := q.QueryRow(ctx, `SELECT id, fiscal_year, entry_type, memo, status, reversal_of, created_by, approved_by, posted_by, created_at, updated_at
FROM journal_entries WHERE id=$1`, id).Scan(&e.ID, &e.FiscalYear, &e.Type, &e.Memo, &e.Status, &e.ReversalOf, &e.CreatedBy, &e.ApprovedBy, &e.PostedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	rows, err := q.Query(ctx, `SELECT line_number, account_ref, debit, credit, description
FROM journal_lines WHERE entry_id=$1 ORDER BY line_number`, id)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l EntryLine
		if err := rows.Scan(&l.LineNumber, &l.AccountRef, &l.Debit, &l.Credit, &l.Description); err != nil {
			return JournalEntry{}, err
		}
		e.Lines = append(e.Lines, l)
	}
	return e, rows.Err()
}

func (r *txRepository) InsertEntry(ctx context.Context, e JournalEntry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO journal_entries (id, fiscal_year, entry_type, memo, status, reversal_of, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, e.ID, e.FiscalYear, string(e.Type), e.Memo, string(e.Status), e.ReversalOf, e.CreatedBy, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return err
	}
	return r.insertLines(ctx, e.ID, e.Lines)
}

// ReplaceLines rewrites the lines of an entry that is still a draft. The
// guard on status makes a concurrent approval win over the edit.
func (r *txRepository) ReplaceLines(ctx context.Context, id uuid.UUID, lines []EntryLine) error {
	tag, err := r.tx.Exec(ctx, `UPDATE journal_entries SET updated_at=NOW() WHERE id=$1 AND status=$2`, id, string(lifecycle.StateDraft))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryImmutable
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1`, id); err != nil {
		return err
	}
	return r.insertLines(ctx, id, lines)
}

func (r *txRepository) insertLines(ctx context.Context, id uuid.UUID, lines []EntryLine) error {
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(`INSERT INTO journal_lines (entry_id, line_number, account_ref, debit, credit, description)
VALUES ($1,$2,$3,$4,$5,$6)`, id, l.LineNumber, l.AccountRef, l.Debit, l.Credit, l.Description)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to lifecycle.State, actorID int64, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$3, updated_at=$5,
	approved_by = CASE WHEN $3 = 'APPROVED' THEN $4 ELSE approved_by END,
	posted_by = CASE WHEN $3 = 'POSTED' THEN $4 ELSE posted_by END
WHERE id=$1 AND status=$2`, id, string(from), string(to), actorID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListPostedEntries returns every POSTED entry of a fiscal year with its lines.
func (r *Repository) ListPostedEntries(ctx context.Context, fiscalYear int) ([]JournalEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, fiscal_year, entry_type, memo, status, reversal_of, created_by, approved_by, posted_by, created_at, updated_at
FROM journal_entries WHERE fiscal_year=$1 AND status=$2 ORDER BY created_at, id`, fiscalYear, string(lifecycle.StatePosted))
	if err != nil {
		return nil, err
	}
	var (
		entries []JournalEntry
		ids     []uuid.UUID
	)
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.FiscalYear, &e.Type, &e.Memo, &e.Status, &e.ReversalOf, &e.CreatedBy, &e.ApprovedBy, &e.PostedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		index[e.ID] = len(entries)
		entries = append(entries, e)
		ids = append(ids, e.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	lineRows, err := r.pool.Query(ctx, `SELECT entry_id, line_number, account_ref, debit, credit, description
FROM journal_lines WHERE entry_id = ANY($1) ORDER BY entry_id, line_number`, ids)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()
	for lineRows.Next() {
		var (
			entryID uuid.UUID
			l       EntryLine
		)
		if err := lineRows.Scan(&entryID, &l.LineNumber, &l.AccountRef, &l.Debit, &l.Credit, &l.Description); err != nil {
			return nil, err
		}
		if i, ok := index[entryID]; ok {
			entries[i].Lines = append(entries[i].Lines, l)
		}
	}
	return entries, lineRows.Err()
}
