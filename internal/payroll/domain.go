package payroll

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// Period is the pay month. (EmployeeRef, Period) identifies a record.
type Period struct {
	Month int
	Year  int
}

// Validate checks the month and year range.
func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return shared.Invalid("payroll: period month must be 1-12")
	}
	if p.Year < 1900 || p.Year > 9999 {
		return shared.Invalid("payroll: period year out of range")
	}
	return nil
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Component is a named allowance or deduction.
type Component struct {
	Code   string      `json:"code"`
	Amount money.Money `json:"amount"`
}

// Input is the employee data a record is generated from.
type Input struct {
	EmployeeRef string
	Period      Period
	BasicSalary money.Money
	Allowances  []Component
	Deductions  []Component
}

// Computation holds the derived payroll figures.
type Computation struct {
	TotalAllowances money.Money
	TotalDeductions money.Money
	NetSalary       money.Money
}

// Record is one employee's payroll for one period.
type Record struct {
	ID              uuid.UUID
	EmployeeRef     string
	Period          Period
	BasicSalary     money.Money
	Allowances      []Component
	Deductions      []Component
	TotalAllowances money.Money
	TotalDeductions money.Money
	NetSalary       money.Money
	Status          lifecycle.State
	Fingerprint     string
	CreatedBy       int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Outcome tells what Generate did.
type Outcome string

const (
	OutcomeNew       Outcome = "NEW"
	OutcomeUnchanged Outcome = "UNCHANGED"
	OutcomeUpdated   Outcome = "UPDATED"
)

// GenerateInput asks for a period's payroll for a set of employees.
type GenerateInput struct {
	Period    Period
	Employees []EmployeeInput
	ActorID   int64
}

// EmployeeInput is one employee's pay data within GenerateInput.
type EmployeeInput struct {
	EmployeeRef string
	BasicSalary money.Money
	Allowances  []Component
	Deductions  []Component
}

// GenerateResult reports the outcome per employee. Err is set when that
// employee's record could not be generated.
type GenerateResult struct {
	Record  Record
	Outcome Outcome
	Err     error
}

// TransitionInput requests a lifecycle move.
type TransitionInput struct {
	RecordID       uuid.UUID
	Action         lifecycle.Action
	ExpectedStatus lifecycle.State
	ActorID        int64
	Note           string
}

var (
	// ErrRecordNotFound indicates missing payroll record.
	ErrRecordNotFound = fmt.Errorf("payroll: record %w", shared.ErrNotFound)
	// ErrEmployeeRequired indicates a blank employee reference.
	ErrEmployeeRequired = shared.Invalid("payroll: employee required")
	// ErrNoEmployees indicates a generation request without employees.
	ErrNoEmployees = shared.Invalid("payroll: at least one employee required")
)
