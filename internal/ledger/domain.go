package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// EntryType enumerates journal-style record types.
type EntryType string

const (
	EntryTypeOpening   EntryType = "OPENING"
	EntryTypeClosing   EntryType = "CLOSING"
	EntryTypeAdjusting EntryType = "ADJUSTING"
	EntryTypeResult    EntryType = "RESULT"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntryTypeOpening, EntryTypeClosing, EntryTypeAdjusting, EntryTypeResult:
		return true
	}
	return false
}

// JournalEntry is a multi-line annual or adjusting entry.
type JournalEntry struct {
	ID         uuid.UUID
	FiscalYear int
	Type       EntryType
	Memo       string
	Status     lifecycle.State
	ReversalOf *uuid.UUID
	Lines      []EntryLine
	CreatedBy  int64
	ApprovedBy *int64
	PostedBy   *int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EntryLine stores one debit or credit row.
type EntryLine struct {
	LineNumber  int
	AccountRef  string
	Debit       money.Money
	Credit      money.Money
	Description string
}

// EntryInput groups fields required to create a draft entry.
type EntryInput struct {
	FiscalYear int
	Type       EntryType
	Memo       string
	ActorID    int64
	Lines      []EntryLine
}

// TransitionInput requests a lifecycle move on an entry.
type TransitionInput struct {
	EntryID        uuid.UUID
	Action         lifecycle.Action
	ExpectedStatus lifecycle.State
	ActorID        int64
	Note           string
}

// ReverseInput requests a reversing draft for a posted entry.
type ReverseInput struct {
	EntryID uuid.UUID
	ActorID int64
	Memo    string
}

var (
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = shared.Invalid("ledger: entry requires at least two lines")
	// ErrEntryNotFound indicates missing entry.
	ErrEntryNotFound = fmt.Errorf("ledger: entry %w", shared.ErrNotFound)
	// ErrEntryImmutable indicates lines can no longer change.
	ErrEntryImmutable = fmt.Errorf("ledger: entry lines are immutable outside draft: %w", shared.ErrConflict)
)

// Validate ensures the input is structurally sound. Balance is not required
// for drafts; it is enforced on approval and posting.
func (in EntryInput) Validate() error {
	if in.FiscalYear < 1900 || in.FiscalYear > 9999 {
		return shared.Invalid("ledger: fiscal year required")
	}
	if !in.Type.Valid() {
		return shared.Invalid("ledger: unknown entry type %q", in.Type)
	}
	if in.ActorID == 0 {
		return shared.Invalid("ledger: actor required")
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	return ValidateShape(in.Lines)
}

// NormalizeLines returns a copy of lines ordered by line number with account
// references trimmed.
func NormalizeLines(lines []EntryLine) []EntryLine {
	out := make([]EntryLine, len(lines))
	copy(out, lines)
	for i := range out {
		out[i].AccountRef = strings.TrimSpace(out[i].AccountRef)
		out[i].Description = strings.TrimSpace(out[i].Description)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LineNumber < out[j].LineNumber })
	return out
}

// ReverseLines swaps debit and credit on every line, keeping order.
func ReverseLines(lines []EntryLine) []EntryLine {
	out := make([]EntryLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, EntryLine{
			LineNumber:  line.LineNumber,
			AccountRef:  line.AccountRef,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Description: line.Description,
		})
	}
	return out
}

func defaultReversalMemo(memo string, original JournalEntry) string {
	if strings.TrimSpace(memo) != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of %s entry %s", strings.ToLower(string(original.Type)), original.ID)
}
