package budget

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// Budget holds planned amounts per category. Totals are always the sums of
// the items and are never entered directly.
type Budget struct {
	ID            uuid.UUID
	Code          string
	Name          string
	FiscalYear    int
	Status        lifecycle.State
	Threshold     Threshold
	TotalBudget   money.Money
	TotalActual   money.Money
	TotalVariance money.Money
	Items         []BudgetItem
	CreatedBy     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BudgetItem is one planned line. Variance fields are derived.
type BudgetItem struct {
	LineNumber         int
	Category           string
	Description        string
	BudgetAmount       money.Money
	ActualAmount       money.Money
	VarianceAmount     money.Money
	VariancePercentage Ratio
	Flagged            bool
}

// ItemInput is the caller-supplied part of an item.
type ItemInput struct {
	LineNumber   int
	Category     string
	Description  string
	BudgetAmount money.Money
	ActualAmount money.Money
}

// Threshold marks items whose variance needs attention. Nil fields are not
// checked.
type Threshold struct {
	Amount  *money.Money
	Percent *money.Rate
}

// CreateInput drafts a new budget.
type CreateInput struct {
	Code       string
	Name       string
	FiscalYear int
	Threshold  Threshold
	Items      []ItemInput
	ActorID    int64
}

// ActualInput records the actual amount spent against one line.
type ActualInput struct {
	LineNumber   int
	ActualAmount money.Money
}

// TransitionInput requests a lifecycle move.
type TransitionInput struct {
	BudgetID       uuid.UUID
	Action         lifecycle.Action
	ExpectedStatus lifecycle.State
	ActorID        int64
	Note           string
}

var (
	// ErrBudgetNotFound indicates missing budget.
	ErrBudgetNotFound = fmt.Errorf("budget: budget %w", shared.ErrNotFound)
	// ErrItemsLocked indicates planned amounts can no longer change.
	ErrItemsLocked = fmt.Errorf("budget: items are locked outside draft: %w", shared.ErrConflict)
	// ErrActualsLocked indicates the budget no longer accepts actuals.
	ErrActualsLocked = fmt.Errorf("budget: actuals are locked once posted or cancelled: %w", shared.ErrConflict)
	// ErrCodeRequired indicates a missing budget code.
	ErrCodeRequired = shared.Invalid("budget: code required")
)

// Validate checks the draft input.
func (in CreateInput) Validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return ErrCodeRequired
	}
	if in.FiscalYear < 1900 || in.FiscalYear > 9999 {
		return shared.Invalid("budget: fiscal year required")
	}
	if in.Threshold.Amount != nil {
		if err := shared.RequireNonNegative("threshold_amount", *in.Threshold.Amount); err != nil {
			return err
		}
	}
	return ValidateItems(in.Items)
}

// ValidateItems checks line numbering and amounts. Categories may still be
// blank while the budget is a draft.
func ValidateItems(items []ItemInput) error {
	seen := make(map[int]struct{}, len(items))
	for _, it := range items {
		if it.LineNumber <= 0 {
			return &shared.InvalidLineShapeError{Line: it.LineNumber, Reason: "line number must be positive"}
		}
		if _, dup := seen[it.LineNumber]; dup {
			return &shared.InvalidLineShapeError{Line: it.LineNumber, Reason: "duplicate line number"}
		}
		seen[it.LineNumber] = struct{}{}
		if err := shared.RequireNonNegative("budget_amount", it.BudgetAmount); err != nil {
			return err
		}
		if err := shared.RequireNonNegative("actual_amount", it.ActualAmount); err != nil {
			return err
		}
	}
	return nil
}
