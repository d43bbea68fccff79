package money

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Rate is a non-negative percentage with at most two fractional digits,
// e.g. 15 or 12.5 for 12.5%.
type Rate struct {
	pct decimal.Decimal
}

// ParseRate reads a percentage string.
func ParseRate(s string) (Rate, error) {
	d, err := parseDecimal(s)
	if err != nil {
		return Rate{}, err
	}
	if d.IsNegative() {
		return Rate{}, &ParseError{Input: s, Reason: "rate must not be negative"}
	}
	return Rate{pct: d}, nil
}

// MustRate is ParseRate for literals.
func MustRate(s string) Rate {
	r, err := ParseRate(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Percent returns the rate as a percentage value.
func (r Rate) Percent() decimal.Decimal { return r.pct }

// IsZero reports a 0% rate.
func (r Rate) IsZero() bool { return r.pct.IsZero() }

// Of returns base × rate / 100 without rounding.
func (r Rate) Of(base Money) Money {
	return Money{amount: base.amount.Mul(r.pct).Div(hundred)}
}

func (r Rate) String() string {
	return r.pct.StringFixed(Scale)
}

// MarshalJSON encodes the rate as a string.
func (r Rate) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON accepts a JSON string percentage.
func (r *Rate) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return &ParseError{Input: string(data), Reason: "rate must be a JSON string"}
	}
	parsed, err := ParseRate(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Value stores the rate as NUMERIC text.
func (r Rate) Value() (driver.Value, error) {
	return r.pct.String(), nil
}

// Scan reads NUMERIC columns.
func (r *Rate) Scan(value any) error {
	var m Money
	if err := m.Scan(value); err != nil {
		return err
	}
	r.pct = m.amount
	return nil
}
