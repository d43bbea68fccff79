package tax

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// Direction tells whether tax was charged (sales) or paid (purchases).
type Direction string

const (
	DirectionOutput Direction = "OUTPUT"
	DirectionInput  Direction = "INPUT"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionOutput || d == DirectionInput
}

// Position is the sign of the net tax: PAYABLE when net ≥ 0.
type Position string

const (
	PositionPayable    Position = "PAYABLE"
	PositionRefundable Position = "REFUNDABLE"
)

// Transaction is one taxable movement. TotalAmount = BaseAmount + TaxAmount.
type Transaction struct {
	LineNumber      int
	Direction       Direction
	Reference       string
	TransactionDate time.Time
	BaseAmount      money.Money
	Rate            money.Rate
	TaxAmount       money.Money
	TotalAmount     money.Money
}

// TransactionInput is the caller-supplied part of a transaction.
type TransactionInput struct {
	LineNumber      int
	Direction       Direction
	Reference       string
	TransactionDate time.Time
	BaseAmount      money.Money
	Rate            money.Rate
}

// NetResult is the netted position over a set of transactions.
type NetResult struct {
	OutputTax money.Money
	InputTax  money.Money
	NetTax    money.Money
	Position  Position
}

// Period is a calendar month.
type Period struct {
	Month int
	Year  int
}

// Validate checks the month and year range.
func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return shared.Invalid("tax: period month must be 1-12")
	}
	if p.Year < 1900 || p.Year > 9999 {
		return shared.Invalid("tax: period year out of range")
	}
	return nil
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Return aggregates one period's transactions for filing.
type Return struct {
	ID           uuid.UUID
	Period       Period
	Status       lifecycle.State
	Result       NetResult
	Transactions []Transaction
	CreatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateInput drafts a tax return.
type CreateInput struct {
	Period       Period
	Transactions []TransactionInput
	ActorID      int64
}

// TransitionInput requests a lifecycle move.
type TransitionInput struct {
	ReturnID       uuid.UUID
	Action         lifecycle.Action
	ExpectedStatus lifecycle.State
	ActorID        int64
	Note           string
}

var (
	// ErrReturnNotFound indicates missing tax return.
	ErrReturnNotFound = fmt.Errorf("tax: return %w", shared.ErrNotFound)
	// ErrReturnExists indicates a return was already filed for the period.
	ErrReturnExists = fmt.Errorf("tax: return for period already exists: %w", shared.ErrConflict)
	// ErrReturnLocked indicates transactions can no longer change.
	ErrReturnLocked = fmt.Errorf("tax: transactions are locked outside draft: %w", shared.ErrConflict)
)
