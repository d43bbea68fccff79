package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error)
}

// TxRepository exposes operations executed inside one transaction.
type TxRepository interface {
	InsertEntry(ctx context.Context, entry JournalEntry) error
	GetEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error)
	ReplaceLines(ctx context.Context, id uuid.UUID, lines []EntryLine) error
	// CompareAndSetStatus moves the entry to `to` only if it is still in
	// `from`. It reports false when another writer got there first.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to lifecycle.State, actorID int64, at time.Time) (bool, error)
}

// Service coordinates drafting, approving, posting and reversing entries.
type Service struct {
	repo    RepositoryPort
	history shared.HistoryPort
	now     func() time.Time
	newID   func() uuid.UUID
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, history shared.HistoryPort) *Service {
	return &Service{repo: repo, history: history, now: time.Now, newID: uuid.New}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateEntry validates line shape and stores a DRAFT entry.
func (s *Service) CreateEntry(ctx context.Context, input EntryInput) (JournalEntry, error) {
	input.Lines = NormalizeLines(input.Lines)
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	now := s.now()
	entry := JournalEntry{
		ID:         s.newID(),
		FiscalYear: input.FiscalYear,
		Type:       input.Type,
		Memo:       input.Memo,
		Status:     lifecycle.StateDraft,
		Lines:      input.Lines,
		CreatedBy:  input.ActorID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertEntry(ctx, entry)
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.audit(ctx, input.ActorID, "ledger.entry.create", entry.ID, map[string]any{
		"type":        string(entry.Type),
		"fiscal_year": entry.FiscalYear,
		"lines":       len(entry.Lines),
	})
	return entry, nil
}

// ReplaceLines swaps the lines of a DRAFT entry.
func (s *Service) ReplaceLines(ctx context.Context, id uuid.UUID, actorID int64, lines []EntryLine) (JournalEntry, error) {
	lines = NormalizeLines(lines)
	if len(lines) < 2 {
		return JournalEntry{}, ErrTooFewLines
	}
	if err := ValidateShape(lines); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != lifecycle.StateDraft {
			return ErrEntryImmutable
		}
		if err := tx.ReplaceLines(ctx, id, lines); err != nil {
			return err
		}
		current.Lines = lines
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.audit(ctx, actorID, "ledger.entry.lines", id, map[string]any{"lines": len(lines)})
	return entry, nil
}

// Transition applies a lifecycle action. Approve and post require the lines
// to balance; the status write is conditional on the state validated here.
func (s *Service) Transition(ctx context.Context, input TransitionInput) (JournalEntry, error) {
	if input.EntryID == uuid.Nil {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	var (
		entry JournalEntry
		res   lifecycle.Result
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntry(ctx, input.EntryID)
		if err != nil {
			return err
		}
		res, err = lifecycle.Apply(lifecycle.Request{
			Kind:     lifecycle.KindJournalEntry,
			ID:       current.ID.String(),
			Current:  current.Status,
			Expected: input.ExpectedStatus,
			Action:   input.Action,
		}, lifecycle.Guard(func() error {
			return ValidateBalance(current.Lines)
		}, lifecycle.ActionApprove, lifecycle.ActionPost))
		if err != nil {
			return err
		}
		now := s.now()
		ok, err := tx.CompareAndSetStatus(ctx, current.ID, res.From, res.To, input.ActorID, now)
		if err != nil {
			return err
		}
		if !ok {
			return &shared.StaleStateError{Entity: "journal_entry", ID: current.ID.String(), Expected: string(res.From)}
		}
		current.Status = res.To
		current.UpdatedAt = now
		switch res.To {
		case lifecycle.StateApproved:
			current.ApprovedBy = &input.ActorID
		case lifecycle.StatePosted:
			current.PostedBy = &input.ActorID
		}
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.history != nil {
		_ = s.history.RecordTransition(ctx, res.Log(input.ActorID, input.Note, s.now()))
	}
	return entry, nil
}

// ReverseEntry drafts a new entry that mirrors a POSTED one with debit and
// credit swapped. The original stays untouched.
func (s *Service) ReverseEntry(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	if input.EntryID == uuid.Nil {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntry(ctx, input.EntryID)
		if err != nil {
			return err
		}
		if original.Status != lifecycle.StatePosted {
			return &shared.IllegalTransitionError{
				DocumentKind: string(lifecycle.KindJournalEntry),
				From:         string(original.Status),
				Action:       "REVERSE",
			}
		}
		now := s.now()
		origID := original.ID
		reversal = JournalEntry{
			ID:         s.newID(),
			FiscalYear: original.FiscalYear,
			Type:       original.Type,
			Memo:       defaultReversalMemo(input.Memo, original),
			Status:     lifecycle.StateDraft,
			ReversalOf: &origID,
			Lines:      ReverseLines(original.Lines),
			CreatedBy:  input.ActorID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return tx.InsertEntry(ctx, reversal)
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.audit(ctx, input.ActorID, "ledger.entry.reverse", input.EntryID, map[string]any{
		"reversal_id": reversal.ID.String(),
	})
	return reversal, nil
}

// GetEntry returns an entry with its lines.
func (s *Service) GetEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	return s.repo.GetEntry(ctx, id)
}

func (s *Service) audit(ctx context.Context, actorID int64, action string, id uuid.UUID, meta map[string]any) {
	if s.history == nil {
		return
	}
	_ = s.history.RecordAudit(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: id.String(),
		Meta:     meta,
		At:       s.now(),
	})
}
