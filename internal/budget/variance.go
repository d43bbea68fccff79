package budget

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fincore/internal/lifecycle"
	"github.com/odyssey-erp/fincore/internal/money"
	"github.com/odyssey-erp/fincore/internal/shared"
)

// Ratio is a percentage that may be undefined because its denominator was
// zero. The zero value is undefined.
type Ratio struct {
	pct     decimal.Decimal
	defined bool
}

// DefinedRatio wraps a computed percentage.
func DefinedRatio(pct decimal.Decimal) Ratio {
	return Ratio{pct: pct, defined: true}
}

// Defined reports whether the ratio has a value.
func (r Ratio) Defined() bool { return r.defined }

// Value returns the percentage, or DivisionUndefinedError when the budget
// amount it was computed against was zero.
func (r Ratio) Value() (decimal.Decimal, error) {
	if !r.defined {
		return decimal.Zero, &shared.DivisionUndefinedError{Quantity: "variance percentage"}
	}
	return r.pct, nil
}

func (r Ratio) String() string {
	if !r.defined {
		return "undefined"
	}
	return r.pct.StringFixed(money.Scale)
}

// MarshalJSON writes the percentage as a string, or null when undefined.
func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.defined {
		return []byte("null"), nil
	}
	return json.Marshal(r.pct.StringFixed(money.Scale))
}

// UnmarshalJSON reverses MarshalJSON.
func (r *Ratio) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Ratio{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return err
	}
	*r = DefinedRatio(d)
	return nil
}

// DBValue returns the column value; undefined ratios are stored as NULL.
func (r Ratio) DBValue() driver.Value {
	if !r.defined {
		return nil
	}
	return r.pct.String()
}

// ComputeItem returns variance = actual − budget and the variance as a
// percentage of budget, rounded to two digits.
func ComputeItem(budgetAmount, actualAmount money.Money) (money.Money, Ratio) {
	variance := actualAmount.Sub(budgetAmount).Round()
	pct, ok := variance.Ratio(budgetAmount)
	if !ok {
		return variance, Ratio{}
	}
	return variance, DefinedRatio(pct.Round(money.Scale))
}

// Exceeds reports whether an item's variance reaches either threshold.
// An undefined percentage never trips the percentage check.
func (t Threshold) Exceeds(variance money.Money, pct Ratio) bool {
	if t.Amount != nil && variance.Abs().GreaterOrEqual(*t.Amount) {
		return true
	}
	if t.Percent != nil && pct.Defined() && pct.pct.Abs().GreaterThanOrEqual(t.Percent.Percent()) {
		return true
	}
	return false
}

// BuildItems derives every item from its inputs, ordered by line number.
func BuildItems(inputs []ItemInput, threshold Threshold) []BudgetItem {
	items := make([]BudgetItem, 0, len(inputs))
	for _, in := range inputs {
		variance, pct := ComputeItem(in.BudgetAmount, in.ActualAmount)
		items = append(items, BudgetItem{
			LineNumber:         in.LineNumber,
			Category:           strings.TrimSpace(in.Category),
			Description:        in.Description,
			BudgetAmount:       in.BudgetAmount,
			ActualAmount:       in.ActualAmount,
			VarianceAmount:     variance,
			VariancePercentage: pct,
			Flagged:            threshold.Exceeds(variance, pct),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].LineNumber < items[j].LineNumber })
	return items
}

// Recompute rebuilds every item and the budget totals from item inputs.
func Recompute(b Budget) Budget {
	inputs := make([]ItemInput, 0, len(b.Items))
	for _, it := range b.Items {
		inputs = append(inputs, it.Input())
	}
	out := b
	out.Items = BuildItems(inputs, b.Threshold)
	budgeted := make([]money.Money, 0, len(out.Items))
	actual := make([]money.Money, 0, len(out.Items))
	for _, it := range out.Items {
		budgeted = append(budgeted, it.BudgetAmount)
		actual = append(actual, it.ActualAmount)
	}
	out.TotalBudget = money.Sum(budgeted...)
	out.TotalActual = money.Sum(actual...)
	out.TotalVariance = out.TotalActual.Sub(out.TotalBudget)
	return out
}

// Input strips derived fields from an item.
func (it BudgetItem) Input() ItemInput {
	return ItemInput{
		LineNumber:   it.LineNumber,
		Category:     it.Category,
		Description:  it.Description,
		BudgetAmount: it.BudgetAmount,
		ActualAmount: it.ActualAmount,
	}
}

// TotalVariancePercentage relates the total variance to the total budget.
func (b Budget) TotalVariancePercentage() Ratio {
	pct, ok := b.TotalVariance.Ratio(b.TotalBudget)
	if !ok {
		return Ratio{}
	}
	return DefinedRatio(pct.Round(money.Scale))
}

// RequireComplete is the approval precondition: the budget has at least one
// item and every item names a category.
func RequireComplete(b Budget, action lifecycle.Action) error {
	if len(b.Items) == 0 {
		return &shared.PreconditionFailedError{
			DocumentKind: string(lifecycle.KindBudget),
			Action:       string(action),
			Reason:       "budget has no items",
		}
	}
	for _, it := range b.Items {
		if strings.TrimSpace(it.Category) == "" {
			return &shared.PreconditionFailedError{
				DocumentKind: string(lifecycle.KindBudget),
				Action:       string(action),
				Reason:       fmt.Sprintf("item %d has no category", it.LineNumber),
			}
		}
	}
	return nil
}
