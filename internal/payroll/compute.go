package payroll

import (
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// Compute derives totals and net = basic + allowances − deductions.
func Compute(in Input) (Computation, error) {
	if strings.TrimSpace(in.EmployeeRef) == "" {
		return Computation{}, ErrEmployeeRequired
	}
	if err := in.Period.Validate(); err != nil {
		return Computation{}, err
	}
	if err := shared.RequireNonNegative("basic_salary", in.BasicSalary); err != nil {
		return Computation{}, err
	}
	allowances, err := sumComponents("allowance", in.Allowances)
	if err != nil {
		return Computation{}, err
	}
	deductions, err := sumComponents("deduction", in.Deductions)
	if err != nil {
		return Computation{}, err
	}
	net := in.BasicSalary.Add(allowances).Sub(deductions)
	if net.IsNegative() {
		return Computation{}, &shared.InvalidAmountError{Field: "net_salary", Reason: "deductions exceed earnings"}
	}
	return Computation{TotalAllowances: allowances, TotalDeductions: deductions, NetSalary: net}, nil
}

func sumComponents(field string, components []Component) (money.Money, error) {
	total := money.Zero()
	for _, c := range components {
		if strings.TrimSpace(c.Code) == "" {
			return money.Money{}, shared.Invalid("payroll: %s code required", field)
		}
		if err := shared.RequireNonNegative(field+"."+c.Code, c.Amount); err != nil {
			return money.Money{}, err
		}
		total = total.Add(c.Amount)
	}
	return total, nil
}

// Fingerprint hashes the canonical form of the inputs with BLAKE2b-256.
// Component order does not matter.
func Fingerprint(in Input) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(in.EmployeeRef))
	b.WriteByte('|')
	b.WriteString(in.Period.String())
	b.WriteByte('|')
	b.WriteString(in.BasicSalary.String())
	writeComponents(&b, "A", in.Allowances)
	writeComponents(&b, "D", in.Deductions)
	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeComponents(b *strings.Builder, tag string, components []Component) {
	sorted := canonical(components)
	b.WriteByte('|')
	b.WriteString(tag)
	for _, c := range sorted {
		b.WriteByte(';')
		b.WriteString(c.Code)
		b.WriteByte('=')
		b.WriteString(c.Amount.String())
	}
}

func canonical(components []Component) []Component {
	out := make([]Component, len(components))
	for i, c := range components {
		out[i] = Component{Code: strings.TrimSpace(c.Code), Amount: c.Amount}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].Amount.LessThan(out[j].Amount)
	})
	return out
}

// Generate decides what happens to the (employee, period) record:
// nothing stored yet creates a DRAFT; identical inputs change nothing;
// changed inputs update a DRAFT in place and fail once the record left DRAFT.
// The caller assigns ID and timestamps to NEW records.
func Generate(existing *Record, in Input) (Record, Outcome, error) {
	comp, err := Compute(in)
	if err != nil {
		return Record{}, "", err
	}
	fp := Fingerprint(in)
	if existing != nil {
		if existing.EmployeeRef != strings.TrimSpace(in.EmployeeRef) || existing.Period != in.Period {
			return Record{}, "", shared.Invalid("payroll: existing record belongs to another employee or period")
		}
		if existing.Fingerprint == fp {
			return *existing, OutcomeUnchanged, nil
		}
		if existing.Status != lifecycle.StateDraft {
			return Record{}, "", &shared.PreconditionFailedError{
				DocumentKind: string(lifecycle.KindPayroll),
				Action:       "GENERATE",
				Reason:       "record for " + in.Period.String() + " is " + string(existing.Status) + " and can no longer change",
			}
		}
	}
	rec := Record{
		EmployeeRef:     strings.TrimSpace(in.EmployeeRef),
		Period:          in.Period,
		BasicSalary:     in.BasicSalary,
		Allowances:      canonical(in.Allowances),
		Deductions:      canonical(in.Deductions),
		TotalAllowances: comp.TotalAllowances,
		TotalDeductions: comp.TotalDeductions,
		NetSalary:       comp.NetSalary,
		Status:          lifecycle.StateDraft,
		Fingerprint:     fp,
	}
	if existing == nil {
		return rec, OutcomeNew, nil
	}
	rec.ID = existing.ID
	rec.CreatedBy = existing.CreatedBy
	rec.CreatedAt = existing.CreatedAt
	return rec, OutcomeUpdated, nil
}

// Input rebuilds the generation input a record was made from.
func (r Record) Input() Input {
	return Input{
		EmployeeRef: r.EmployeeRef,
		Period:      r.Period,
		BasicSalary: r.BasicSalary,
		Allowances:  r.Allowances,
		Deductions:  r.Deductions,
	}
}

// RequireConsistent is the approval precondition: the stored figures still
// match a fresh computation of the stored inputs.
func RequireConsistent(r Record, action lifecycle.Action) error {
	comp, err := Compute(r.Input())
	if err != nil {
		return &shared.PreconditionFailedError{DocumentKind: string(lifecycle.KindPayroll), Action: string(action), Reason: "inputs invalid", Err: err}
	}
	if !comp.NetSalary.Equal(r.NetSalary) {
		return &shared.PreconditionFailedError{
			DocumentKind: string(lifecycle.KindPayroll),
			Action:       string(action),
			Reason:       "stored net salary " + r.NetSalary.String() + " does not match " + comp.NetSalary.String(),
		}
	}
	return nil
}
