package invoicing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// TaxMode states whether a line price excludes or includes tax.
type TaxMode string

const (
	TaxExclusive TaxMode = "EXCLUSIVE"
	TaxInclusive TaxMode = "INCLUSIVE"
)

// PaymentStatus is always derived from total and paid amounts.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "UNPAID"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
)

// LineInput is a raw invoice line as entered.
type LineInput struct {
	ProductRef  string
	Description string
	Quantity    int64
	UnitPrice   money.Money
	TaxRate     money.Rate
	Discount    money.Money
	TaxMode     TaxMode
}

// InvoiceLine is a fully derived line.
type InvoiceLine struct {
	LineNumber  int
	ProductRef  string
	Description string
	Quantity    int64
	UnitPrice   money.Money
	TaxRate     money.Rate
	Discount    money.Money
	Subtotal    money.Money
	TaxAmount   money.Money
	Total       money.Money
}

// Input carries what a caller supplies to build an invoice.
type Input struct {
	CustomerRef   string
	PaymentMethod string
	IssueDate     time.Time
	DueDate       time.Time
	Lines         []LineInput
	PaidAmount    money.Money
}

// Invoice aggregates are derived from lines and payments; none is entered.
type Invoice struct {
	ID              uuid.UUID
	Number          string
	CustomerRef     string
	PaymentMethod   string
	IssueDate       time.Time
	DueDate         time.Time
	Status          lifecycle.State
	Lines           []InvoiceLine
	Subtotal        money.Money
	TaxAmount       money.Money
	Discount        money.Money
	TotalAmount     money.Money
	PaidAmount      money.Money
	RemainingAmount money.Money
	PaymentStatus   PaymentStatus
	CreatedBy       int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Payment is one receipt applied to an invoice.
type Payment struct {
	ID        uuid.UUID
	InvoiceID uuid.UUID
	Amount    money.Money
	Method    string
	PaidAt    time.Time
	Note      string
	CreatedBy int64
}

// AgingBucket summarises remaining amounts by days past due.
type AgingBucket struct {
	Current   money.Money
	Bucket30  money.Money
	Bucket60  money.Money
	Bucket90  money.Money
	Bucket120 money.Money
}

// Total sums every bucket.
func (b AgingBucket) Total() money.Money {
	return money.Sum(b.Current, b.Bucket30, b.Bucket60, b.Bucket90, b.Bucket120)
}

// CreateInput requests a new invoice.
type CreateInput struct {
	Input
	ActorID        int64
	IdempotencyKey string
}

// PaymentInput requests a payment against an invoice.
type PaymentInput struct {
	InvoiceID      uuid.UUID
	Amount         money.Money
	Method         string
	PaidAt         time.Time
	Note           string
	ActorID        int64
	IdempotencyKey string
}

// TransitionInput requests a lifecycle move on an invoice.
type TransitionInput struct {
	InvoiceID      uuid.UUID
	Action         lifecycle.Action
	ExpectedStatus lifecycle.State
	ActorID        int64
	Note           string
}

var (
	// ErrInvoiceNotFound indicates missing invoice.
	ErrInvoiceNotFound = fmt.Errorf("invoicing: invoice %w", shared.ErrNotFound)
	// ErrNoLines indicates an invoice without lines.
	ErrNoLines = shared.Invalid("invoicing: invoice requires at least one line")
	// ErrCustomerRequired indicates a missing customer reference.
	ErrCustomerRequired = shared.Invalid("invoicing: customer required")
	// ErrDueBeforeIssue indicates inverted invoice dates.
	ErrDueBeforeIssue = shared.Invalid("invoicing: due date before issue date")
)
