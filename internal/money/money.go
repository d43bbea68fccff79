// Package money provides the fixed-point monetary value used by every
// computation in fincore. Amounts are exact decimals; rounding to the
// two-digit money scale happens only where a caller asks for a final field.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by a final money field.
const Scale int32 = 2

var hundred = decimal.NewFromInt(100)

// Money is an immutable decimal amount. The zero value is 0.00.
type Money struct {
	amount decimal.Decimal
}

// ParseError reports a malformed amount or rate. It is never swallowed into a
// zero value.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("money: invalid amount %q: %s", e.Input, e.Reason)
}

// Zero returns 0.00.
func Zero() Money {
	return Money{}
}

// New wraps a decimal without rounding. Use it for intermediate values.
func New(d decimal.Decimal) Money {
	return Money{amount: d}
}

// FromInt builds a whole-unit amount.
func FromInt(units int64) Money {
	return Money{amount: decimal.NewFromInt(units)}
}

// FromCents builds an amount from minor units.
func FromCents(cents int64) Money {
	return Money{amount: decimal.New(cents, -Scale)}
}

// FromFloat converts a binary float by rounding half away from zero to the
// money scale. It is the only float entry point.
func FromFloat(f float64) Money {
	return Money{amount: decimal.NewFromFloat(f).Round(Scale)}
}

// Parse reads a decimal string with at most two significant fractional
// digits. Empty or malformed input is an error.
func Parse(s string) (Money, error) {
	d, err := parseDecimal(s)
	if err != nil {
		return Money{}, err
	}
	return Money{amount: d}, nil
}

// MustParse is Parse for literals; it panics on malformed input.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

func parseDecimal(s string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return decimal.Zero, &ParseError{Input: s, Reason: "empty"}
	}
	if strings.ContainsAny(trimmed, "eE") {
		return decimal.Zero, &ParseError{Input: s, Reason: "exponent notation not accepted"}
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, &ParseError{Input: s, Reason: "not a decimal number"}
	}
	if !d.Equal(d.Truncate(Scale)) {
		return decimal.Zero, &ParseError{Input: s, Reason: "more than 2 fractional digits"}
	}
	return d, nil
}

// Decimal exposes the underlying value.
func (m Money) Decimal() decimal.Decimal { return m.amount }

func (m Money) Add(o Money) Money { return Money{amount: m.amount.Add(o.amount)} }
func (m Money) Sub(o Money) Money { return Money{amount: m.amount.Sub(o.amount)} }
func (m Money) Neg() Money        { return Money{amount: m.amount.Neg()} }
func (m Money) Abs() Money        { return Money{amount: m.amount.Abs()} }

// Mul multiplies by an exact factor without rounding.
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(factor)}
}

// MulInt multiplies by an integer quantity.
func (m Money) MulInt(n int64) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(n))}
}

// Div divides by n. The quotient keeps decimal.DivisionPrecision digits and
// must be rounded by the caller before it becomes a final field.
func (m Money) Div(n decimal.Decimal) (Money, bool) {
	if n.IsZero() {
		return Money{}, false
	}
	return Money{amount: m.amount.Div(n)}, true
}

// Round applies half-away-from-zero rounding to the money scale, which is
// round-half-up for every non-negative amount.
func (m Money) Round() Money {
	return Money{amount: m.amount.Round(Scale)}
}

// Ratio returns m / o × 100, unrounded. ok is false when o is zero.
func (m Money) Ratio(o Money) (decimal.Decimal, bool) {
	if o.amount.IsZero() {
		return decimal.Zero, false
	}
	return m.amount.Div(o.amount).Mul(hundred), true
}

func (m Money) Cmp(o Money) int             { return m.amount.Cmp(o.amount) }
func (m Money) Equal(o Money) bool          { return m.amount.Equal(o.amount) }
func (m Money) LessThan(o Money) bool       { return m.amount.LessThan(o.amount) }
func (m Money) GreaterThan(o Money) bool    { return m.amount.GreaterThan(o.amount) }
func (m Money) GreaterOrEqual(o Money) bool { return m.amount.GreaterThanOrEqual(o.amount) }
func (m Money) IsZero() bool                { return m.amount.IsZero() }
func (m Money) IsNegative() bool            { return m.amount.IsNegative() }
func (m Money) IsPositive() bool            { return m.amount.IsPositive() }

// Min returns the smaller of m and o.
func Min(m, o Money) Money {
	if m.LessThan(o) {
		return m
	}
	return o
}

// Max returns the larger of m and o.
func Max(m, o Money) Money {
	if m.GreaterThan(o) {
		return m
	}
	return o
}

// Sum adds amounts without intermediate rounding.
func Sum(values ...Money) Money {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v.amount)
	}
	return Money{amount: total}
}

// String renders the amount with exactly two fractional digits.
func (m Money) String() string {
	return m.amount.StringFixed(Scale)
}

// MarshalJSON encodes the amount as a fixed two-digit string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts a JSON string only; numbers would pass through float.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return &ParseError{Input: string(data), Reason: "amount must be a JSON string"}
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value stores the amount as NUMERIC text.
func (m Money) Value() (driver.Value, error) {
	return m.amount.String(), nil
}

// Scan reads NUMERIC columns.
func (m *Money) Scan(value any) error {
	var raw string
	switch v := value.(type) {
	case nil:
		return fmt.Errorf("money: cannot scan NULL")
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case int64:
		m.amount = decimal.NewFromInt(v)
		return nil
	default:
		return fmt.Errorf("money: cannot scan %T", value)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return &ParseError{Input: raw, Reason: "not a decimal number"}
	}
	m.amount = d
	return nil
}
